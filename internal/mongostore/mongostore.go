// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// Store talks to a single MongoDB database. Document ids are generated
// client-side as ObjectID hex strings so both store implementations share
// one id format.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

func New(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName)}
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, url, dbName string) (*Store, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return New(client, dbName), nil
}

// Close releases the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection    { return s.db.Collection("users") }
func (s *Store) tickets() *mongo.Collection  { return s.db.Collection("tickets") }
func (s *Store) comments() *mongo.Collection { return s.db.Collection("comments") }
func (s *Store) notifs() *mongo.Collection   { return s.db.Collection("notifs") }
func (s *Store) chats() *mongo.Collection    { return s.db.Collection("chats") }
func (s *Store) messages() *mongo.Collection { return s.db.Collection("messages") }

// EnsureIndexes creates the indexes the store relies on. The partial unique
// index on memberKey is what makes direct-chat creation race-free.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.chats().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "memberKey", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"isGroupChat": false}),
		},
		{Keys: bson.D{{Key: "users", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}); err != nil {
		return err
	}
	_, err := s.messages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func newID() string { return primitive.NewObjectID().Hex() }

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// after returns the post-update document.
var after = options.FindOneAndUpdate().SetReturnDocument(options.After)

// ---- users ----

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.ID = newID()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := s.users().InsertOne(ctx, u)
	return err
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.users().FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	cur, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var found []models.User
	if err := cur.All(ctx, &found); err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.users().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := []models.User{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) SearchUsers(ctx context.Context, keyword, excludeID string) ([]models.User, error) {
	filter := bson.M{"_id": bson.M{"$ne": excludeID}}
	if keyword != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"username": re},
			bson.M{"firstname": re},
			bson.M{"lastname": re},
		}
	}
	cur, err := s.users().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := []models.User{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.Firstname != nil {
		set["firstname"] = *upd.Firstname
	}
	if upd.Lastname != nil {
		set["lastname"] = *upd.Lastname
	}
	if upd.IsAdmin != nil {
		set["isAdmin"] = *upd.IsAdmin
	}
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.Department != nil {
		set["department"] = *upd.Department
	}
	if upd.ProfilePicture != nil {
		set["profilePicture"] = *upd.ProfilePicture
	}
	if upd.Job != nil {
		set["job"] = *upd.Job
	}
	if upd.SchoolID != nil {
		set["schoolId"] = *upd.SchoolID
	}
	if upd.Contacts != nil {
		set["contacts"] = *upd.Contacts
	}
	var u models.User
	err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, after).Decode(&u)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) SetUserPassword(ctx context.Context, id, hash string) error {
	res, err := s.users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password":  hash,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- tickets ----

func (s *Store) InsertTicket(ctx context.Context, t *models.Ticket) error {
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
	_, err := s.tickets().InsertOne(ctx, t)
	return err
}

func (s *Store) TicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	if err := s.tickets().FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	cur, err := s.tickets().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := []models.Ticket{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) UpdateTicket(ctx context.Context, id string, upd models.TicketUpdate) (*models.Ticket, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Issue != nil {
		set["issue"] = *upd.Issue
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Department != nil {
		set["department"] = *upd.Department
	}
	if upd.Assignee != nil {
		set["assignee"] = *upd.Assignee
	}
	if upd.Priority != nil {
		set["priority"] = *upd.Priority
	}
	if upd.MaxTime != nil {
		set["maxTime"] = *upd.MaxTime
	}
	if upd.MinTime != nil {
		set["minTime"] = *upd.MinTime
	}
	if upd.Comments != nil {
		set["comment"] = *upd.Comments
	}
	var t models.Ticket
	err := s.tickets().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, after).Decode(&t)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.tickets().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- comments ----

func (s *Store) InsertComment(ctx context.Context, cm *models.Comment) error {
	now := time.Now().UTC()
	cm.ID = newID()
	cm.CreatedAt, cm.UpdatedAt = now, now
	if cm.Replies == nil {
		cm.Replies = []models.Reply{}
	}
	_, err := s.comments().InsertOne(ctx, cm)
	return err
}

func (s *Store) CommentByID(ctx context.Context, id string) (*models.Comment, error) {
	var cm models.Comment
	if err := s.comments().FindOne(ctx, bson.M{"_id": id}).Decode(&cm); err != nil {
		return nil, notFound(err)
	}
	return &cm, nil
}

func (s *Store) ListComments(ctx context.Context) ([]models.Comment, error) {
	cur, err := s.comments().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := []models.Comment{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) UpdateComment(ctx context.Context, id string, upd models.CommentUpdate) (*models.Comment, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.TicketID != nil {
		set["ticketId"] = *upd.TicketID
	}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.Comment != nil {
		set["comment"] = *upd.Comment
	}
	var cm models.Comment
	err := s.comments().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, after).Decode(&cm)
	if err != nil {
		return nil, notFound(err)
	}
	return &cm, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.comments().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AddReply(ctx context.Context, commentID string, r models.Reply) (*models.Comment, error) {
	r.ID = newID()
	r.CommentID = commentID
	r.CreatedAt = time.Now().UTC()
	var cm models.Comment
	err := s.comments().FindOneAndUpdate(ctx, bson.M{"_id": commentID}, bson.M{
		"$push": bson.M{"replies": r},
		"$set":  bson.M{"updatedAt": r.CreatedAt},
	}, after).Decode(&cm)
	if err != nil {
		return nil, notFound(err)
	}
	return &cm, nil
}

// replyErr distinguishes a missing parent comment from a missing reply after
// a positional update matched nothing.
func (s *Store) replyErr(ctx context.Context, commentID string) error {
	if _, err := s.CommentByID(ctx, commentID); err != nil {
		return err
	}
	return store.ErrReplyNotFound
}

func (s *Store) EditReply(ctx context.Context, commentID, replyID, text string) (*models.Comment, error) {
	var cm models.Comment
	err := s.comments().FindOneAndUpdate(ctx,
		bson.M{"_id": commentID, "replies._id": replyID},
		bson.M{"$set": bson.M{
			"replies.$.reply": text,
			"updatedAt":       time.Now().UTC(),
		}}, after).Decode(&cm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.replyErr(ctx, commentID)
	}
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

func (s *Store) DeleteReply(ctx context.Context, commentID, replyID string) (*models.Comment, error) {
	var cm models.Comment
	err := s.comments().FindOneAndUpdate(ctx,
		bson.M{"_id": commentID, "replies._id": replyID},
		bson.M{
			"$pull": bson.M{"replies": bson.M{"_id": replyID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		}, after).Decode(&cm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.replyErr(ctx, commentID)
	}
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// ---- notifications ----

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	n.ID = newID()
	n.CreatedAt, n.UpdatedAt = now, now
	_, err := s.notifs().InsertOne(ctx, n)
	return err
}

func (s *Store) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	cur, err := s.notifs().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := []models.Notification{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) DeleteNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.notifs().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// ---- chats ----

func (s *Store) GetOrCreateDirectChat(ctx context.Context, callerID, otherID string) (*models.Chat, bool, error) {
	key := models.DirectChatKey(callerID, otherID)
	filter := bson.M{"isGroupChat": false, "memberKey": key}

	var ch models.Chat
	err := s.chats().FindOne(ctx, filter).Decode(&ch)
	if err == nil {
		return &ch, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	now := time.Now().UTC()
	ch = models.Chat{
		ID:          newID(),
		ChatName:    "sender",
		Photo:       models.DefaultChatPhoto,
		IsGroupChat: false,
		Users:       []string{callerID, otherID},
		MemberKey:   key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.chats().InsertOne(ctx, ch); err != nil {
		// Lost the race to the other side; the unique memberKey index
		// guarantees the winner's chat is the one to return.
		if mongo.IsDuplicateKeyError(err) {
			var existing models.Chat
			if ferr := s.chats().FindOne(ctx, filter).Decode(&existing); ferr != nil {
				return nil, false, notFound(ferr)
			}
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &ch, true, nil
}

func (s *Store) InsertGroupChat(ctx context.Context, ch *models.Chat) error {
	now := time.Now().UTC()
	ch.ID = newID()
	ch.IsGroupChat = true
	if ch.Photo == "" {
		ch.Photo = models.DefaultChatPhoto
	}
	ch.CreatedAt, ch.UpdatedAt = now, now
	_, err := s.chats().InsertOne(ctx, ch)
	return err
}

func (s *Store) ChatByID(ctx context.Context, id string) (*models.Chat, error) {
	var ch models.Chat
	if err := s.chats().FindOne(ctx, bson.M{"_id": id}).Decode(&ch); err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

func (s *Store) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := s.chats().Find(ctx, bson.M{"users": userID}, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Chat{}
	err = cur.All(ctx, &out)
	return out, err
}

func (s *Store) RenameChat(ctx context.Context, id, name string) (*models.Chat, error) {
	var ch models.Chat
	err := s.chats().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"chatName":  name,
		"updatedAt": time.Now().UTC(),
	}}, after).Decode(&ch)
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

func (s *Store) AddChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	var ch models.Chat
	err := s.chats().FindOneAndUpdate(ctx, bson.M{"_id": chatID}, bson.M{
		"$addToSet": bson.M{"users": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}, after).Decode(&ch)
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

func (s *Store) RemoveChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	var ch models.Chat
	err := s.chats().FindOneAndUpdate(ctx, bson.M{"_id": chatID}, bson.M{
		"$pull": bson.M{"users": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}, after).Decode(&ch)
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

// ---- messages ----

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	m.ID = newID()
	m.CreatedAt = time.Now().UTC()

	insertAndPoint := func(c context.Context) error {
		if _, err := s.messages().InsertOne(c, m); err != nil {
			return err
		}
		res, err := s.chats().UpdateOne(c, bson.M{"_id": m.ChatID}, bson.M{"$set": bson.M{
			"latestMessage": m.ID,
			"updatedAt":     m.CreatedAt,
		}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return store.ErrNotFound
		}
		return nil
	}

	// Prefer a session transaction so the message and the latest-message
	// pointer move together. Standalone deployments reject transactions;
	// fall back to sequential writes there, where a failed pointer update
	// leaves a stale pointer that self-heals on the next send. Any other
	// transaction failure may have committed ambiguously, so retrying the
	// insert outside the transaction would duplicate the message id; those
	// errors are surfaced instead.
	sess, err := s.client.StartSession()
	if err == nil {
		defer sess.EndSession(ctx)
		_, txErr := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, insertAndPoint(sc)
		})
		if txErr == nil {
			return nil
		}
		if errors.Is(txErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		if !transactionsUnsupported(txErr) {
			return txErr
		}
	}
	return insertAndPoint(ctx)
}

// transactionsUnsupported reports whether the server rejected the transaction
// outright, as standalone deployments do, meaning no write can have happened.
func transactionsUnsupported(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.HasErrorCode(20) || strings.Contains(ce.Message, "Transaction numbers")
	}
	return false
}

func (s *Store) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := s.messages().FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.messages().Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Message{}
	err = cur.All(ctx, &out)
	return out, err
}
