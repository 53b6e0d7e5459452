package notifications_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	apppkg "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	notifspkg "github.com/tinkingtin/tinkingtin-go/cmd/api/notifications"
	wspkg "github.com/tinkingtin/tinkingtin-go/cmd/api/ws"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
)

func newTestApp(t *testing.T, q *redis.Client) *apppkg.App {
	t.Helper()
	a := apppkg.NewApp(apppkg.Config{Env: "test"}, memstore.New(), nil, q)
	a.R.POST("/", notifspkg.Create(a))
	a.R.GET("/notifs", notifspkg.List(a))
	a.R.DELETE("/:id", notifspkg.Delete(a))
	return a
}

func do(t *testing.T, a *apppkg.App, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestCreateListDelete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sub := rdb.Subscribe(context.Background(), "events")
	defer sub.Close()
	events := sub.Channel()

	a := newTestApp(t, rdb)
	rr := do(t, a, http.MethodPost, "/", map[string]string{
		"senderName":        "alice@gmail.com",
		"receiverFirstName": "Bob",
		"receiverLastName":  "Cruz",
		"notification":      "assigned you a ticket",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var n models.Notification
	if err := json.Unmarshal(rr.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	if n.ID == "" {
		t.Fatal("missing id")
	}

	msg := <-events
	var ev wspkg.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "notification_created" {
		t.Fatalf("expected notification_created event, got %q", ev.Type)
	}

	rr = do(t, a, http.MethodGet, "/notifs", nil)
	var list []models.Notification
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}

	rr = do(t, a, http.MethodDelete, "/"+n.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	var deleted models.Notification
	if err := json.Unmarshal(rr.Body.Bytes(), &deleted); err != nil {
		t.Fatal(err)
	}
	if deleted.ID != n.ID {
		t.Fatalf("expected deleted document back, got %+v", deleted)
	}

	rr = do(t, a, http.MethodDelete, "/"+n.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rr.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	a := newTestApp(t, nil)
	rr := do(t, a, http.MethodPost, "/", map[string]string{"notification": "incomplete"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
