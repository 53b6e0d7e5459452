// Package models holds the document types shared by the HTTP handlers and
// the store implementations. JSON field names follow the wire contract the
// frontend expects; bson tags mirror them so documents round-trip unchanged.
package models

import (
	"sort"
	"time"
)

// DefaultChatPhoto is used when a chat is created without a photo.
const DefaultChatPhoto = "https://cdn-icons-png.flaticon.com/512/9790/9790561.png"

// User is an identity record. The password hash is never serialized.
type User struct {
	ID             string    `bson:"_id,omitempty" json:"_id"`
	Username       string    `bson:"username" json:"username"`
	Password       string    `bson:"password" json:"-"`
	Firstname      string    `bson:"firstname" json:"firstname"`
	Lastname       string    `bson:"lastname" json:"lastname"`
	IsAdmin        bool      `bson:"isAdmin" json:"isAdmin"`
	Role           string    `bson:"role" json:"role"`
	Department     string    `bson:"department" json:"department"`
	ProfilePicture string    `bson:"profilePicture,omitempty" json:"profilePicture,omitempty"`
	Job            string    `bson:"job,omitempty" json:"job,omitempty"`
	SchoolID       string    `bson:"schoolId,omitempty" json:"schoolId,omitempty"`
	Contacts       []string  `bson:"contacts,omitempty" json:"contacts,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserUpdate carries the mutable user fields; nil means "leave unchanged".
type UserUpdate struct {
	Username       *string   `json:"username"`
	Firstname      *string   `json:"firstname"`
	Lastname       *string   `json:"lastname"`
	IsAdmin        *bool     `json:"isAdmin"`
	Role           *string   `json:"role"`
	Department     *string   `json:"department"`
	ProfilePicture *string   `json:"profilePicture"`
	Job            *string   `json:"job"`
	SchoolID       *string   `json:"schoolId"`
	Contacts       *[]string `json:"contacts"`
}

// Ticket is a support request. Status and priority are free-form strings;
// no state machine is enforced on them.
type Ticket struct {
	ID            string    `bson:"_id,omitempty" json:"_id"`
	UserID        string    `bson:"userId" json:"userId"`
	UserFirstname string    `bson:"userfirstname" json:"userfirstname"`
	UserLastname  string    `bson:"userlastname" json:"userlastname"`
	Issue         string    `bson:"issue" json:"issue"`
	Description   string    `bson:"description" json:"description"`
	Status        string    `bson:"status" json:"status"`
	Department    string    `bson:"department,omitempty" json:"department,omitempty"`
	Assignee      []string  `bson:"assignee" json:"assignee"`
	Priority      string    `bson:"priority" json:"priority"`
	MaxTime       int       `bson:"maxTime" json:"maxTime"`
	MinTime       int       `bson:"minTime" json:"minTime"`
	Comments      []string  `bson:"comment" json:"comment"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// TicketUpdate carries the mutable ticket fields.
type TicketUpdate struct {
	Issue       *string   `json:"issue"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Department  *string   `json:"department"`
	Assignee    *[]string `json:"assignee"`
	Priority    *string   `json:"priority"`
	MaxTime     *int      `json:"maxTime"`
	MinTime     *int      `json:"minTime"`
	Comments    *[]string `json:"comment"`
}

// Reply is a sub-record embedded in a comment's ordered reply list. It has
// no lifecycle outside its parent comment.
type Reply struct {
	ID        string    `bson:"_id" json:"_id"`
	Username  string    `bson:"username" json:"username"`
	CommentID string    `bson:"commentId" json:"commentId"`
	Reply     string    `bson:"reply" json:"reply"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Comment is attached to a ticket by its string id and authored by username;
// both are denormalized, not references.
type Comment struct {
	ID        string    `bson:"_id,omitempty" json:"_id"`
	TicketID  string    `bson:"ticketId" json:"ticketId"`
	Username  string    `bson:"username" json:"username"`
	Comment   string    `bson:"comment" json:"comment"`
	Replies   []Reply   `bson:"replies" json:"replies"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CommentUpdate carries the mutable comment fields. Replies are mutated
// through the dedicated reply operations only.
type CommentUpdate struct {
	TicketID *string `json:"ticketId"`
	Username *string `json:"username"`
	Comment  *string `json:"comment"`
}

// Notification is addressed by denormalized names; it has no read state.
type Notification struct {
	ID                string    `bson:"_id,omitempty" json:"_id"`
	SenderName        string    `bson:"senderName" json:"senderName"`
	ReceiverFirstName string    `bson:"receiverFirstName" json:"receiverFirstName"`
	ReceiverLastName  string    `bson:"receiverLastName" json:"receiverLastName"`
	Notification      string    `bson:"notification" json:"notification"`
	Context           string    `bson:"context,omitempty" json:"context,omitempty"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Chat is either a direct chat (two members, isGroupChat=false) or a named
// group chat with a designated admin. Users holds member ids; LatestMessage
// is a denormalized pointer to the most recent message. MemberKey is the
// canonical sorted member pair for direct chats and backs the uniqueness
// guarantee of one direct chat per unordered user pair.
type Chat struct {
	ID            string    `bson:"_id,omitempty" json:"_id"`
	ChatName      string    `bson:"chatName" json:"chatName"`
	Photo         string    `bson:"photo" json:"photo"`
	IsGroupChat   bool      `bson:"isGroupChat" json:"isGroupChat"`
	Users         []string  `bson:"users" json:"users"`
	LatestMessage string    `bson:"latestMessage,omitempty" json:"latestMessage,omitempty"`
	GroupAdmin    string    `bson:"groupAdmin,omitempty" json:"groupAdmin,omitempty"`
	MemberKey     string    `bson:"memberKey,omitempty" json:"-"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasMember reports whether id is in the chat's member list.
func (c *Chat) HasMember(id string) bool {
	for _, u := range c.Users {
		if u == id {
			return true
		}
	}
	return false
}

// DirectChatKey canonicalizes an unordered user pair.
func DirectChatKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return p[0] + ":" + p[1]
}

// Message belongs to exactly one chat and is immutable once sent.
type Message struct {
	ID        string    `bson:"_id,omitempty" json:"_id"`
	Sender    string    `bson:"sender" json:"sender"`
	Message   string    `bson:"message" json:"message"`
	ChatID    string    `bson:"chatId" json:"chatId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
