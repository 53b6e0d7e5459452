// Package store defines the persistence contract the HTTP handlers are
// written against. internal/mongostore implements it on MongoDB;
// internal/memstore implements it in memory for development and tests.
package store

import (
	"context"
	"errors"

	"github.com/tinkingtin/tinkingtin-go/internal/models"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("not found")

// ErrReplyNotFound is returned when the parent comment exists but the
// addressed reply does not. Handlers report it distinctly from ErrNotFound.
var ErrReplyNotFound = errors.New("reply not found")

// Store is the full persistence surface. Every method is safe for
// concurrent use; consistency guarantees are documented per method.
type Store interface {
	UserStore
	TicketStore
	CommentStore
	NotificationStore
	ChatStore
	MessageStore
}

type UserStore interface {
	// InsertUser assigns an id and timestamps and stores the user.
	InsertUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UsersByIDs returns the users for the given ids, preserving id order
	// and silently skipping ids that no longer resolve.
	UsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// SearchUsers matches keyword case-insensitively against username,
	// firstname and lastname, excluding excludeID. An empty keyword
	// matches everyone but the excluded user.
	SearchUsers(ctx context.Context, keyword, excludeID string) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
	SetUserPassword(ctx context.Context, id, hash string) error
	DeleteUser(ctx context.Context, id string) error
}

type TicketStore interface {
	InsertTicket(ctx context.Context, t *models.Ticket) error
	TicketByID(ctx context.Context, id string) (*models.Ticket, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, id string, upd models.TicketUpdate) (*models.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
}

type CommentStore interface {
	InsertComment(ctx context.Context, cm *models.Comment) error
	CommentByID(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id string, upd models.CommentUpdate) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	// AddReply appends a reply atomically and returns the updated comment.
	AddReply(ctx context.Context, commentID string, r models.Reply) (*models.Comment, error)
	// EditReply rewrites one reply's text in place via a positional update.
	// Returns ErrNotFound for a missing comment, ErrReplyNotFound for a
	// missing reply within an existing comment.
	EditReply(ctx context.Context, commentID, replyID, text string) (*models.Comment, error)
	// DeleteReply removes exactly one reply, identified by id, with the
	// same error discrimination as EditReply.
	DeleteReply(ctx context.Context, commentID, replyID string) (*models.Comment, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context) ([]models.Notification, error)
	DeleteNotification(ctx context.Context, id string) (*models.Notification, error)
}

type ChatStore interface {
	// GetOrCreateDirectChat returns the one direct chat between the two
	// users, creating it when absent. At most one direct chat exists per
	// unordered pair, including under concurrent first contact from both
	// sides. The returned bool reports whether the chat was created.
	GetOrCreateDirectChat(ctx context.Context, callerID, otherID string) (*models.Chat, bool, error)
	InsertGroupChat(ctx context.Context, ch *models.Chat) error
	ChatByID(ctx context.Context, id string) (*models.Chat, error)
	// ChatsForUser lists the chats the user is a member of, most recently
	// updated first.
	ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	RenameChat(ctx context.Context, id, name string) (*models.Chat, error)
	AddChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error)
	RemoveChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error)
}

type MessageStore interface {
	// AppendMessage stores the message and moves the owning chat's
	// latest-message pointer (and updatedAt) in one store operation.
	// Returns ErrNotFound when the chat does not exist.
	AppendMessage(ctx context.Context, m *models.Message) error
	MessageByID(ctx context.Context, id string) (*models.Message, error)
	// MessagesForChat returns the chat's history in ascending creation
	// order.
	MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error)
}
