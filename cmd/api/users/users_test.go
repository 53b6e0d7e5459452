package users_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apppkg "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	authpkg "github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	userspkg "github.com/tinkingtin/tinkingtin-go/cmd/api/users"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

const secret = "test-secret"

func newTestApp(t *testing.T) (*apppkg.App, store.Store) {
	t.Helper()
	db := memstore.New()
	a := apppkg.NewApp(apppkg.Config{Env: "test", JWTSecret: secret}, db, nil, nil)
	g := a.R.Group("/user", authpkg.Optional(a))
	g.GET("/users", userspkg.List(a))
	g.GET("/:id", userspkg.Get(a))
	g.PUT("/assign/:id", authpkg.Required(), userspkg.Assign(a))
	g.PUT("/:id", authpkg.Required(), userspkg.Update(a))
	g.DELETE("/:id", authpkg.Required(), userspkg.Delete(a))
	return a, db
}

func seedUser(t *testing.T, db store.Store, username, role string, admin bool) (*models.User, string) {
	t.Helper()
	u := models.User{Username: username, Password: "hash", Firstname: "F", Lastname: "L", Role: role, IsAdmin: admin}
	if err := db.InsertUser(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	token, err := authpkg.IssueToken(secret, &u)
	if err != nil {
		t.Fatal(err)
	}
	return &u, token
}

func do(t *testing.T, a *apppkg.App, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
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

func TestGetAndList(t *testing.T) {
	a, db := newTestApp(t)
	u, _ := seedUser(t, db, "alice@gmail.com", "", false)
	seedUser(t, db, "bob@gmail.com", "", false)

	rr := do(t, a, http.MethodGet, "/user/"+u.ID, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	rr = do(t, a, http.MethodGet, "/user/66f000000000000000000000", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = do(t, a, http.MethodGet, "/user/users", nil, "")
	var users []models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestUpdateReissuesToken(t *testing.T) {
	a, db := newTestApp(t)
	u, token := seedUser(t, db, "alice@gmail.com", "", false)

	rr := do(t, a, http.MethodPut, "/user/"+u.ID, map[string]string{"firstname": "Alicia"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.User.Firstname != "Alicia" || out.Token == "" {
		t.Fatalf("unexpected response: %+v", out)
	}
	claims, err := authpkg.ParseClaims(secret, out.Token)
	if err != nil || claims.ID != u.ID {
		t.Fatalf("bad reissued token: %v %+v", err, claims)
	}
}

func TestAssign(t *testing.T) {
	a, db := newTestApp(t)
	u, token := seedUser(t, db, "alice@gmail.com", "", false)

	rr := do(t, a, http.MethodPut, "/user/assign/"+u.ID, map[string]interface{}{
		"role": "Technician", "department": "IT",
	}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got, err := db.UserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != "Technician" || got.Department != "IT" {
		t.Fatalf("assign not applied: %+v", got)
	}

	rr = do(t, a, http.MethodPut, "/user/assign/66f000000000000000000000", map[string]string{"role": "x"}, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteAuthorization(t *testing.T) {
	a, db := newTestApp(t)
	alice, aliceToken := seedUser(t, db, "alice@gmail.com", "", false)
	bob, bobToken := seedUser(t, db, "bob@gmail.com", "", false)
	_, adminToken := seedUser(t, db, "root@gmail.com", "Admin", true)

	// A regular user cannot delete someone else.
	rr := do(t, a, http.MethodDelete, "/user/"+alice.ID, nil, bobToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	// Users can delete themselves.
	rr = do(t, a, http.MethodDelete, "/user/"+alice.ID, nil, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Admins can delete anyone.
	rr = do(t, a, http.MethodDelete, "/user/"+bob.ID, nil, adminToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if _, err := db.UserByID(context.Background(), bob.ID); err != store.ErrNotFound {
		t.Fatalf("expected user gone, got %v", err)
	}
}
