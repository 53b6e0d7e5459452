// Package memstore implements store.Store in process memory. It backs local
// development when no MongoDB is configured and the handler test suites.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// Store keeps every collection in a map guarded by one mutex. Values are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu       sync.Mutex
	users    map[string]models.User
	tickets  map[string]models.Ticket
	comments map[string]models.Comment
	notifs   map[string]models.Notification
	chats    map[string]models.Chat
	messages map[string][]models.Message // keyed by chat id, in send order
	directs  map[string]string           // memberKey -> chat id
	seq      map[string]int64            // chat id -> last activity sequence
	nextSeq  int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    map[string]models.User{},
		tickets:  map[string]models.Ticket{},
		comments: map[string]models.Comment{},
		notifs:   map[string]models.Notification{},
		chats:    map[string]models.Chat{},
		messages: map[string][]models.Message{},
		directs:  map[string]string{},
		seq:      map[string]int64{},
	}
}

func newID() string { return primitive.NewObjectID().Hex() }

func (s *Store) touchChat(id string) {
	s.nextSeq++
	s.seq[id] = s.nextSeq
}

// ---- users ----

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u.ID = newID()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SearchUsers(ctx context.Context, keyword, excludeID string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw := strings.ToLower(keyword)
	out := []models.User{}
	for _, u := range s.users {
		if u.ID == excludeID {
			continue
		}
		if kw == "" ||
			strings.Contains(strings.ToLower(u.Username), kw) ||
			strings.Contains(strings.ToLower(u.Firstname), kw) ||
			strings.Contains(strings.ToLower(u.Lastname), kw) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Firstname != nil {
		u.Firstname = *upd.Firstname
	}
	if upd.Lastname != nil {
		u.Lastname = *upd.Lastname
	}
	if upd.IsAdmin != nil {
		u.IsAdmin = *upd.IsAdmin
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Department != nil {
		u.Department = *upd.Department
	}
	if upd.ProfilePicture != nil {
		u.ProfilePicture = *upd.ProfilePicture
	}
	if upd.Job != nil {
		u.Job = *upd.Job
	}
	if upd.SchoolID != nil {
		u.SchoolID = *upd.SchoolID
	}
	if upd.Contacts != nil {
		u.Contacts = append([]string(nil), (*upd.Contacts)...)
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return &u, nil
}

func (s *Store) SetUserPassword(ctx context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = hash
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// ---- tickets ----

func (s *Store) InsertTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.ID = newID()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = "Open"
	}
	if t.Assignee == nil {
		t.Assignee = []string{}
	}
	if t.Comments == nil {
		t.Comments = []string{}
	}
	s.tickets[t.ID] = *t
	return nil
}

func (s *Store) TicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateTicket(ctx context.Context, id string, upd models.TicketUpdate) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Issue != nil {
		t.Issue = *upd.Issue
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Department != nil {
		t.Department = *upd.Department
	}
	if upd.Assignee != nil {
		t.Assignee = append([]string(nil), (*upd.Assignee)...)
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.MaxTime != nil {
		t.MaxTime = *upd.MaxTime
	}
	if upd.MinTime != nil {
		t.MinTime = *upd.MinTime
	}
	if upd.Comments != nil {
		t.Comments = append([]string(nil), (*upd.Comments)...)
	}
	t.UpdatedAt = time.Now().UTC()
	s.tickets[id] = t
	return &t, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

// ---- comments ----

func (s *Store) InsertComment(ctx context.Context, cm *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	cm.ID = newID()
	cm.CreatedAt, cm.UpdatedAt = now, now
	if cm.Replies == nil {
		cm.Replies = []models.Reply{}
	}
	s.comments[cm.ID] = copyComment(*cm)
	return nil
}

func copyComment(cm models.Comment) models.Comment {
	cm.Replies = append([]models.Reply(nil), cm.Replies...)
	return cm
}

func (s *Store) CommentByID(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm, ok := s.comments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cm = copyComment(cm)
	return &cm, nil
}

func (s *Store) ListComments(ctx context.Context) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Comment, 0, len(s.comments))
	for _, cm := range s.comments {
		out = append(out, copyComment(cm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateComment(ctx context.Context, id string, upd models.CommentUpdate) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm, ok := s.comments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.TicketID != nil {
		cm.TicketID = *upd.TicketID
	}
	if upd.Username != nil {
		cm.Username = *upd.Username
	}
	if upd.Comment != nil {
		cm.Comment = *upd.Comment
	}
	cm.UpdatedAt = time.Now().UTC()
	s.comments[id] = copyComment(cm)
	cm = copyComment(cm)
	return &cm, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

func (s *Store) AddReply(ctx context.Context, commentID string, r models.Reply) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm, ok := s.comments[commentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.ID = newID()
	r.CommentID = commentID
	r.CreatedAt = time.Now().UTC()
	cm = copyComment(cm)
	cm.Replies = append(cm.Replies, r)
	cm.UpdatedAt = r.CreatedAt
	s.comments[commentID] = copyComment(cm)
	return &cm, nil
}

func (s *Store) EditReply(ctx context.Context, commentID, replyID, text string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm, ok := s.comments[commentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cm = copyComment(cm)
	for i := range cm.Replies {
		if cm.Replies[i].ID == replyID {
			cm.Replies[i].Reply = text
			cm.UpdatedAt = time.Now().UTC()
			s.comments[commentID] = copyComment(cm)
			return &cm, nil
		}
	}
	return nil, store.ErrReplyNotFound
}

func (s *Store) DeleteReply(ctx context.Context, commentID, replyID string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm, ok := s.comments[commentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cm = copyComment(cm)
	for i := range cm.Replies {
		if cm.Replies[i].ID == replyID {
			cm.Replies = append(cm.Replies[:i], cm.Replies[i+1:]...)
			cm.UpdatedAt = time.Now().UTC()
			s.comments[commentID] = copyComment(cm)
			return &cm, nil
		}
	}
	return nil, store.ErrReplyNotFound
}

// ---- notifications ----

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	n.ID = newID()
	n.CreatedAt, n.UpdatedAt = now, now
	s.notifs[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.notifs))
	for _, n := range s.notifs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.notifs, id)
	return &n, nil
}

// ---- chats ----

func copyChat(ch models.Chat) models.Chat {
	ch.Users = append([]string(nil), ch.Users...)
	return ch
}

func (s *Store) GetOrCreateDirectChat(ctx context.Context, callerID, otherID string) (*models.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.DirectChatKey(callerID, otherID)
	if id, ok := s.directs[key]; ok {
		ch := copyChat(s.chats[id])
		return &ch, false, nil
	}
	now := time.Now().UTC()
	ch := models.Chat{
		ID:          newID(),
		ChatName:    "sender",
		Photo:       models.DefaultChatPhoto,
		IsGroupChat: false,
		Users:       []string{callerID, otherID},
		MemberKey:   key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.chats[ch.ID] = copyChat(ch)
	s.directs[key] = ch.ID
	s.touchChat(ch.ID)
	return &ch, true, nil
}

func (s *Store) InsertGroupChat(ctx context.Context, ch *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	ch.ID = newID()
	ch.IsGroupChat = true
	if ch.Photo == "" {
		ch.Photo = models.DefaultChatPhoto
	}
	ch.CreatedAt, ch.UpdatedAt = now, now
	s.chats[ch.ID] = copyChat(*ch)
	s.touchChat(ch.ID)
	return nil
}

func (s *Store) ChatByID(ctx context.Context, id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ch = copyChat(ch)
	return &ch, nil
}

func (s *Store) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Chat{}
	for _, ch := range s.chats {
		if (&ch).HasMember(userID) {
			out = append(out, copyChat(ch))
		}
	}
	// Most recent activity first; the sequence counter breaks timestamp
	// ties deterministically.
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] > s.seq[out[j].ID] })
	return out, nil
}

func (s *Store) RenameChat(ctx context.Context, id, name string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ch.ChatName = name
	ch.UpdatedAt = time.Now().UTC()
	s.chats[id] = ch
	s.touchChat(id)
	ch = copyChat(ch)
	return &ch, nil
}

func (s *Store) AddChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ch = copyChat(ch)
	if !(&ch).HasMember(userID) {
		ch.Users = append(ch.Users, userID)
	}
	ch.UpdatedAt = time.Now().UTC()
	s.chats[chatID] = copyChat(ch)
	s.touchChat(chatID)
	return &ch, nil
}

func (s *Store) RemoveChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ch = copyChat(ch)
	for i, u := range ch.Users {
		if u == userID {
			ch.Users = append(ch.Users[:i], ch.Users[i+1:]...)
			break
		}
	}
	ch.UpdatedAt = time.Now().UTC()
	s.chats[chatID] = copyChat(ch)
	s.touchChat(chatID)
	return &ch, nil
}

// ---- messages ----

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chats[m.ChatID]
	if !ok {
		return store.ErrNotFound
	}
	m.ID = newID()
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ChatID] = append(s.messages[m.ChatID], *m)
	ch.LatestMessage = m.ID
	ch.UpdatedAt = m.CreatedAt
	s.chats[m.ChatID] = ch
	s.touchChat(m.ChatID)
	return nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == id {
				m := m
				return &m, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.messages[chatID]...), nil
}
