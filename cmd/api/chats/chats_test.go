package chats_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apppkg "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	authpkg "github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	chatspkg "github.com/tinkingtin/tinkingtin-go/cmd/api/chats"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

const secret = "test-secret"

func newTestApp(t *testing.T) (*apppkg.App, store.Store) {
	t.Helper()
	db := memstore.New()
	a := apppkg.NewApp(apppkg.Config{Env: "test", JWTSecret: secret}, db, nil, nil)
	g := a.R.Group("/chat", authpkg.Optional(a), authpkg.Required())
	g.POST("/", chatspkg.Access(a))
	g.GET("/", chatspkg.Fetch(a))
	g.POST("/group", chatspkg.CreateGroup(a))
	g.PUT("/group/rename", chatspkg.Rename(a))
	g.PUT("/group/add", chatspkg.AddMember(a))
	g.PUT("/group/remove", chatspkg.RemoveMember(a))
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

func accessChat(t *testing.T, a *apppkg.App, token, otherID string) chatspkg.View {
	t.Helper()
	rr := do(t, a, http.MethodPost, "/chat/", map[string]string{"userId": otherID}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("access: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var v chatspkg.View
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestDirectChatIsUniquePerPair(t *testing.T) {
	a, db := newTestApp(t)
	alice, aliceToken := seedUser(t, db, "alice@gmail.com")
	bob, bobToken := seedUser(t, db, "bob@gmail.com")

	first := accessChat(t, a, aliceToken, bob.ID)
	if first.IsGroupChat {
		t.Fatal("direct chat flagged as group")
	}
	if len(first.Users) != 2 {
		t.Fatalf("expected 2 expanded members, got %d", len(first.Users))
	}
	if first.Photo != models.DefaultChatPhoto {
		t.Fatalf("expected default photo, got %q", first.Photo)
	}

	// The same chat comes back from either direction.
	second := accessChat(t, a, bobToken, alice.ID)
	if second.ID != first.ID {
		t.Fatalf("expected one chat per pair, got %s and %s", first.ID, second.ID)
	}
	chs, err := db.ChatsForUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chs) != 1 {
		t.Fatalf("expected 1 stored chat, got %d", len(chs))
	}
}

func TestAccessValidation(t *testing.T) {
	a, db := newTestApp(t)
	_, token := seedUser(t, db, "alice@gmail.com")

	rr := do(t, a, http.MethodPost, "/chat/", map[string]string{}, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing userId: expected 400, got %d", rr.Code)
	}
	rr = do(t, a, http.MethodPost, "/chat/", map[string]string{"userId": "66f000000000000000000000"}, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown target: expected 404, got %d", rr.Code)
	}
}

func createGroup(t *testing.T, a *apppkg.App, token string, memberIDs []string) chatspkg.View {
	t.Helper()
	users, _ := json.Marshal(memberIDs)
	rr := do(t, a, http.MethodPost, "/chat/group", map[string]string{
		"chatName": "IT crowd", "users": string(users),
	}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("create group: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var v chatspkg.View
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCreateGroup(t *testing.T) {
	a, db := newTestApp(t)
	alice, aliceToken := seedUser(t, db, "alice@gmail.com")
	bob, _ := seedUser(t, db, "bob@gmail.com")
	carol, _ := seedUser(t, db, "carol@gmail.com")

	v := createGroup(t, a, aliceToken, []string{bob.ID, carol.ID})
	if !v.IsGroupChat {
		t.Fatal("expected group chat")
	}
	if len(v.Users) != 3 {
		t.Fatalf("expected caller appended, got %d members", len(v.Users))
	}
	if v.GroupAdmin == nil || v.GroupAdmin.ID != alice.ID {
		t.Fatalf("expected caller as admin, got %+v", v.GroupAdmin)
	}

	// Fewer than two explicit members is rejected.
	users, _ := json.Marshal([]string{bob.ID})
	rr := do(t, a, http.MethodPost, "/chat/group", map[string]string{
		"chatName": "too small", "users": string(users),
	}, aliceToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGroupMembershipChanges(t *testing.T) {
	a, db := newTestApp(t)
	_, aliceToken := seedUser(t, db, "alice@gmail.com")
	bob, bobToken := seedUser(t, db, "bob@gmail.com")
	carol, _ := seedUser(t, db, "carol@gmail.com")
	dave, _ := seedUser(t, db, "dave@gmail.com")

	v := createGroup(t, a, aliceToken, []string{bob.ID, carol.ID})

	// Non-admin members cannot modify the group.
	rr := do(t, a, http.MethodPut, "/chat/group/rename", map[string]string{
		"chatId": v.ID, "chatName": "hijacked",
	}, bobToken)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = do(t, a, http.MethodPut, "/chat/group/rename", map[string]string{
		"chatId": v.ID, "chatName": "Support team",
	}, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Adding an existing member conflicts and leaves the chat unchanged.
	rr = do(t, a, http.MethodPut, "/chat/group/add", map[string]string{
		"chatId": v.ID, "userId": bob.ID,
	}, aliceToken)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate add: expected 409, got %d", rr.Code)
	}
	ch, err := db.ChatByID(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.Users) != 3 {
		t.Fatalf("membership changed on conflict: %v", ch.Users)
	}

	rr = do(t, a, http.MethodPut, "/chat/group/add", map[string]string{
		"chatId": v.ID, "userId": dave.ID,
	}, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", rr.Code)
	}

	// Removing a non-member conflicts.
	rr = do(t, a, http.MethodPut, "/chat/group/remove", map[string]string{
		"chatId": v.ID, "userId": "66f000000000000000000000",
	}, aliceToken)
	if rr.Code != http.StatusConflict {
		t.Fatalf("absent remove: expected 409, got %d", rr.Code)
	}

	rr = do(t, a, http.MethodPut, "/chat/group/remove", map[string]string{
		"chatId": v.ID, "userId": carol.ID,
	}, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", rr.Code)
	}
	ch, err = db.ChatByID(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.Users) != 3 || ch.HasMember(carol.ID) {
		t.Fatalf("unexpected membership: %v", ch.Users)
	}
}

func TestGroupOpsOnMissingChat(t *testing.T) {
	a, db := newTestApp(t)
	_, token := seedUser(t, db, "alice@gmail.com")
	rr := do(t, a, http.MethodPut, "/chat/group/rename", map[string]string{
		"chatId": "66f000000000000000000000", "chatName": "x",
	}, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
