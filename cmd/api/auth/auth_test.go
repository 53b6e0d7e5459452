package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apppkg "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	authpkg "github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
)

const secret = "test-secret"

func newTestApp(t *testing.T) *apppkg.App {
	t.Helper()
	cfg := apppkg.Config{Env: "test", JWTSecret: secret}
	a := apppkg.NewApp(cfg, memstore.New(), nil, nil)
	a.R.POST("/auth/register", authpkg.Register(a))
	a.R.POST("/auth/login", authpkg.Login(a))
	a.R.GET("/auth/", authpkg.Optional(a), authpkg.Required(), authpkg.Search(a))
	return a
}

func doJSON(t *testing.T, a *apppkg.App, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func register(t *testing.T, a *apppkg.App, username, password string) (models.User, string) {
	t.Helper()
	first := strings.SplitN(username, "@", 2)[0]
	rr := doJSON(t, a, http.MethodPost, "/auth/register", map[string]interface{}{
		"username":  username,
		"password":  password,
		"firstname": first,
		"lastname":  "Lee",
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return out.User, out.Token
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestApp(t)
	u, token := register(t, a, "alice@gmail.com", "Secret123")
	if u.ID == "" || token == "" {
		t.Fatalf("missing id or token: %+v", u)
	}
	claims, err := authpkg.ParseClaims(secret, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.ID != u.ID || claims.Username != "alice@gmail.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	cases := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"valid credentials", "alice@gmail.com", "Secret123", http.StatusOK},
		{"wrong password", "alice@gmail.com", "nope", http.StatusBadRequest},
		{"unknown user", "bob@gmail.com", "Secret123", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, a, http.MethodPost, "/auth/login", map[string]string{
				"username": tc.username, "password": tc.password,
			}, "")
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "alice@gmail.com", "Secret123")
	rr := doJSON(t, a, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice@gmail.com", "password": "x",
		"firstname": "A", "lastname": "B",
	}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPasswordNeverSerialized(t *testing.T) {
	a := newTestApp(t)
	rr := doJSON(t, a, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice@gmail.com", "password": "Secret123",
		"firstname": "Alice", "lastname": "Lee",
	}, "")
	if bytes.Contains(rr.Body.Bytes(), []byte("Secret123")) || bytes.Contains(rr.Body.Bytes(), []byte("password")) {
		t.Fatalf("password leaked in response: %s", rr.Body.String())
	}
}

func TestSearchExcludesCaller(t *testing.T) {
	a := newTestApp(t)
	_, token := register(t, a, "alice@gmail.com", "pw")
	register(t, a, "alfred@gmail.com", "pw")
	register(t, a, "bob@gmail.com", "pw")

	rr := doJSON(t, a, http.MethodGet, "/auth/?search=al", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var users []models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alfred@gmail.com" {
		t.Fatalf("unexpected result: %+v", users)
	}
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestApp(t)
	_, token := register(t, a, "alice@gmail.com", "pw")

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid token", token, http.StatusOK},
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, a, http.MethodGet, "/auth/?search=x", nil, tc.token)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
