package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

func TestDirectChatUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch1, created, err := s.GetOrCreateDirectChat(ctx, "a", "b")
	if err != nil || !created {
		t.Fatalf("first access: created=%v err=%v", created, err)
	}
	// Reversed order resolves to the same chat.
	ch2, created, err := s.GetOrCreateDirectChat(ctx, "b", "a")
	if err != nil || created {
		t.Fatalf("second access: created=%v err=%v", created, err)
	}
	if ch1.ID != ch2.ID {
		t.Fatalf("expected one chat, got %s and %s", ch1.ID, ch2.ID)
	}
	if ch1.ChatName != "sender" || ch1.Photo != models.DefaultChatPhoto {
		t.Fatalf("unexpected defaults: %+v", ch1)
	}
}

func TestAppendMessageMovesPointer(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch, _, err := s.GetOrCreateDirectChat(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}

	m1 := models.Message{Sender: "a", Message: "one", ChatID: ch.ID}
	if err := s.AppendMessage(ctx, &m1); err != nil {
		t.Fatal(err)
	}
	m2 := models.Message{Sender: "b", Message: "two", ChatID: ch.ID}
	if err := s.AppendMessage(ctx, &m2); err != nil {
		t.Fatal(err)
	}

	got, err := s.ChatByID(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LatestMessage != m2.ID {
		t.Fatalf("pointer not moved: %q", got.LatestMessage)
	}
	msgs, err := s.MessagesForChat(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != m1.ID || msgs[1].ID != m2.ID {
		t.Fatalf("history out of order: %+v", msgs)
	}

	bad := models.Message{Sender: "a", Message: "x", ChatID: "missing"}
	if err := s.AppendMessage(ctx, &bad); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChatsForUserOrderedByActivity(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch1, _, _ := s.GetOrCreateDirectChat(ctx, "a", "b")
	ch2, _, _ := s.GetOrCreateDirectChat(ctx, "a", "c")

	// Activity in ch1 moves it back to the front.
	m := models.Message{Sender: "a", Message: "ping", ChatID: ch1.ID}
	if err := s.AppendMessage(ctx, &m); err != nil {
		t.Fatal(err)
	}

	chs, err := s.ChatsForUser(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(chs) != 2 || chs[0].ID != ch1.ID || chs[1].ID != ch2.ID {
		t.Fatalf("unexpected order: %+v", chs)
	}
}

func TestReplyErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	cm := models.Comment{TicketID: "t1", Username: "u", Comment: "c"}
	if err := s.InsertComment(ctx, &cm); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EditReply(ctx, "missing", "r", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing comment: expected ErrNotFound, got %v", err)
	}
	if _, err := s.EditReply(ctx, cm.ID, "missing", "x"); !errors.Is(err, store.ErrReplyNotFound) {
		t.Fatalf("missing reply: expected ErrReplyNotFound, got %v", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := models.User{Username: "alice@gmail.com", Password: "h", Firstname: "Alice", Lastname: "Lee"}
	if err := s.InsertUser(ctx, &u); err != nil {
		t.Fatal(err)
	}
	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Firstname = "mutated"
	again, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Firstname != "Alice" {
		t.Fatal("stored document shares memory with caller")
	}
}
