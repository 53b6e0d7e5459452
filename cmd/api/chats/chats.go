// Package chats implements direct and group conversations. Responses expand
// member ids into user documents so clients can render an inbox without
// follow-up lookups.
package chats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// LatestMessageView is a message with its sender expanded.
type LatestMessageView struct {
	ID        string      `json:"_id"`
	Sender    models.User `json:"sender"`
	Message   string      `json:"message"`
	ChatID    string      `json:"chatId"`
	CreatedAt time.Time   `json:"createdAt"`
}

// View is a chat with members, admin and latest message expanded.
type View struct {
	ID            string             `json:"_id"`
	ChatName      string             `json:"chatName"`
	Photo         string             `json:"photo"`
	IsGroupChat   bool               `json:"isGroupChat"`
	Users         []models.User      `json:"users"`
	LatestMessage *LatestMessageView `json:"latestMessage,omitempty"`
	GroupAdmin    *models.User       `json:"groupAdmin,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// NewView expands a stored chat for the wire.
func NewView(ctx context.Context, db store.Store, ch *models.Chat) (*View, error) {
	users, err := db.UsersByIDs(ctx, ch.Users)
	if err != nil {
		return nil, err
	}
	v := &View{
		ID:          ch.ID,
		ChatName:    ch.ChatName,
		Photo:       ch.Photo,
		IsGroupChat: ch.IsGroupChat,
		Users:       users,
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
	}
	if ch.GroupAdmin != "" {
		if admin, err := db.UserByID(ctx, ch.GroupAdmin); err == nil {
			v.GroupAdmin = admin
		}
	}
	if ch.LatestMessage != "" {
		if m, err := db.MessageByID(ctx, ch.LatestMessage); err == nil {
			lv := &LatestMessageView{ID: m.ID, Message: m.Message, ChatID: m.ChatID, CreatedAt: m.CreatedAt}
			if sender, err := db.UserByID(ctx, m.Sender); err == nil {
				lv.Sender = *sender
			}
			v.LatestMessage = lv
		}
	}
	return v, nil
}

type accessReq struct {
	UserID string `json:"userId"`
}

// Access returns the caller's direct chat with the given user, creating it on
// first contact. Both directions resolve to the same chat.
func Access(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in accessReq
		if err := c.ShouldBindJSON(&in); err != nil || in.UserID == "" {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "userId is required", nil)
			return
		}
		id, _ := auth.Current(c)
		ctx := c.Request.Context()
		if _, err := a.DB.UserByID(ctx, in.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
				return
			}
			log.Ctx(ctx).Error().Err(err).Msg("get user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		ch, _, err := a.DB.GetOrCreateDirectChat(ctx, id.ID, in.UserID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("access chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		v, err := NewView(ctx, a.DB, ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// Fetch lists the caller's chats, most recently active first.
func Fetch(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := auth.Current(c)
		ctx := c.Request.Context()
		chs, err := a.DB.ChatsForUser(ctx, id.ID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("list chats")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		out := make([]*View, 0, len(chs))
		for i := range chs {
			v, err := NewView(ctx, a.DB, &chs[i])
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("expand chat")
				app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
				return
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, out)
	}
}

type createGroupReq struct {
	ChatName string          `json:"chatName" binding:"required"`
	Users    json.RawMessage `json:"users" binding:"required"`
	Photo    string          `json:"photo"`
}

// parseUsers accepts the member list either as a JSON array or as a
// JSON-encoded string containing one.
func parseUsers(raw json.RawMessage) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateGroup creates a group chat with the caller as admin.
func CreateGroup(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createGroupReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		members, err := parseUsers(in.Users)
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "users must be a list of user ids", nil)
			return
		}
		if len(members) < 2 {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "a group chat needs at least 2 other users", nil)
			return
		}
		id, _ := auth.Current(c)
		ch := models.Chat{
			ChatName:   in.ChatName,
			Photo:      in.Photo,
			Users:      append(members, id.ID),
			GroupAdmin: id.ID,
		}
		ctx := c.Request.Context()
		if err := a.DB.InsertGroupChat(ctx, &ch); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("create group chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		v, err := NewView(ctx, a.DB, &ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// adminChat loads the chat and verifies the caller is its group admin.
func adminChat(c *gin.Context, a *app.App, chatID string) (*models.Chat, bool) {
	ctx := c.Request.Context()
	ch, err := a.DB.ChatByID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		app.AbortError(c, http.StatusNotFound, "chat_not_found", "chat not found", nil)
		return nil, false
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("get chat")
		app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return nil, false
	}
	id, _ := auth.Current(c)
	if ch.GroupAdmin != id.ID {
		app.AbortError(c, http.StatusForbidden, "forbidden", "only the group admin can modify the group", nil)
		return nil, false
	}
	return ch, true
}

type renameReq struct {
	ChatID   string `json:"chatId" binding:"required"`
	ChatName string `json:"chatName" binding:"required"`
}

// Rename renames a group chat. Admin only.
func Rename(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in renameReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		if _, ok := adminChat(c, a, in.ChatID); !ok {
			return
		}
		ctx := c.Request.Context()
		ch, err := a.DB.RenameChat(ctx, in.ChatID, in.ChatName)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("rename chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		v, err := NewView(ctx, a.DB, ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

type memberReq struct {
	ChatID string `json:"chatId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

// AddMember adds a user to a group chat. Admin only; adding an existing
// member is a conflict and leaves the chat unchanged.
func AddMember(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in memberReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ch, ok := adminChat(c, a, in.ChatID)
		if !ok {
			return
		}
		if ch.HasMember(in.UserID) {
			app.AbortError(c, http.StatusConflict, "already_member", "user is already in the group", nil)
			return
		}
		ctx := c.Request.Context()
		ch, err := a.DB.AddChatMember(ctx, in.ChatID, in.UserID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("add chat member")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		v, err := NewView(ctx, a.DB, ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// RemoveMember removes a user from a group chat. Admin only; removing a
// non-member is a conflict.
func RemoveMember(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in memberReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ch, ok := adminChat(c, a, in.ChatID)
		if !ok {
			return
		}
		if !ch.HasMember(in.UserID) {
			app.AbortError(c, http.StatusConflict, "not_member", "user is not in the group", nil)
			return
		}
		ctx := c.Request.Context()
		ch, err := a.DB.RemoveChatMember(ctx, in.ChatID, in.UserID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("remove chat member")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		v, err := NewView(ctx, a.DB, ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}
