package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apppkg "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	authpkg "github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	messagespkg "github.com/tinkingtin/tinkingtin-go/cmd/api/messages"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

const secret = "test-secret"

func newTestApp(t *testing.T) (*apppkg.App, store.Store) {
	t.Helper()
	db := memstore.New()
	a := apppkg.NewApp(apppkg.Config{Env: "test", JWTSecret: secret}, db, nil, nil)
	g := a.R.Group("/message", authpkg.Optional(a), authpkg.Required())
	g.POST("/", messagespkg.Send(a))
	g.GET("/:chatId", messagespkg.List(a))
	return a, db
}

func seedUser(t *testing.T, db store.Store, username string) (*models.User, string) {
	t.Helper()
	u := models.User{Username: username, Password: "hash", Firstname: "F", Lastname: "L"}
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
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestSendAndList(t *testing.T) {
	a, db := newTestApp(t)
	alice, aliceToken := seedUser(t, db, "alice@gmail.com")
	bob, bobToken := seedUser(t, db, "bob@gmail.com")
	ch, _, err := db.GetOrCreateDirectChat(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	rr := do(t, a, http.MethodPost, "/message/", map[string]string{
		"chatId": ch.ID, "message": "hello bob",
	}, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var v messagespkg.View
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Sender.ID != alice.ID || v.Message != "hello bob" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.Chat == nil || v.Chat.ID != ch.ID {
		t.Fatal("chat not expanded in response")
	}
	if v.Chat.LatestMessage == nil || v.Chat.LatestMessage.ID != v.ID {
		t.Fatalf("latest message pointer not moved: %+v", v.Chat.LatestMessage)
	}

	do(t, a, http.MethodPost, "/message/", map[string]string{"chatId": ch.ID, "message": "hi alice"}, bobToken)

	rr = do(t, a, http.MethodGet, "/message/"+ch.ID, nil, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var msgs []messagespkg.View
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Message != "hello bob" || msgs[1].Message != "hi alice" {
		t.Fatalf("history not chronological: %+v", msgs)
	}
	// History entries carry expanded sender and chat documents, not ids.
	if msgs[0].Sender.Username != "alice@gmail.com" || msgs[1].Sender.Username != "bob@gmail.com" {
		t.Fatalf("senders not expanded: %+v", msgs)
	}
	if msgs[0].Chat == nil || msgs[0].Chat.ID != ch.ID || len(msgs[0].Chat.Users) != 2 {
		t.Fatalf("chat not expanded: %+v", msgs[0].Chat)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	a, db := newTestApp(t)
	alice, _ := seedUser(t, db, "alice@gmail.com")
	bob, _ := seedUser(t, db, "bob@gmail.com")
	_, eveToken := seedUser(t, db, "eve@gmail.com")
	ch, _, err := db.GetOrCreateDirectChat(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	rr := do(t, a, http.MethodPost, "/message/", map[string]string{
		"chatId": ch.ID, "message": "let me in",
	}, eveToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestMissingChatIs404(t *testing.T) {
	a, db := newTestApp(t)
	_, token := seedUser(t, db, "alice@gmail.com")

	rr := do(t, a, http.MethodPost, "/message/", map[string]string{
		"chatId": "66f000000000000000000000", "message": "x",
	}, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("send: expected 404, got %d", rr.Code)
	}
	rr = do(t, a, http.MethodGet, "/message/66f000000000000000000000", nil, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("list: expected 404, got %d", rr.Code)
	}
}
