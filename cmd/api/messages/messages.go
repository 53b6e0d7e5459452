// Package messages implements sending and reading chat messages. Sending
// moves the chat's latest-message pointer and fans out a realtime event to
// the chat's members.
package messages

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/chats"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/metrics"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/ws"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// View is a message with its sender and owning chat expanded.
type View struct {
	ID        string      `json:"_id"`
	Sender    models.User `json:"sender"`
	Message   string      `json:"message"`
	Chat      *chats.View `json:"chatId"`
	CreatedAt time.Time   `json:"createdAt"`
}

type sendReq struct {
	ChatID  string `json:"chatId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Send stores a message in a chat the caller belongs to.
func Send(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in sendReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		id, _ := auth.Current(c)
		ctx := c.Request.Context()
		ch, err := a.DB.ChatByID(ctx, in.ChatID)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "chat_not_found", "chat not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("get chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		if !ch.HasMember(id.ID) {
			app.AbortError(c, http.StatusForbidden, "forbidden", "not a member of this chat", nil)
			return
		}
		m := models.Message{Sender: id.ID, Message: in.Message, ChatID: in.ChatID}
		if err := a.DB.AppendMessage(ctx, &m); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				app.AbortError(c, http.StatusNotFound, "chat_not_found", "chat not found", nil)
				return
			}
			log.Ctx(ctx).Error().Err(err).Msg("append message")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		metrics.MessagesSentTotal.Inc()
		ch.LatestMessage = m.ID
		v := &View{ID: m.ID, Message: m.Message, CreatedAt: m.CreatedAt}
		if sender, err := a.DB.UserByID(ctx, m.Sender); err == nil {
			v.Sender = *sender
		}
		if cv, err := chats.NewView(ctx, a.DB, ch); err == nil {
			v.Chat = cv
		}
		ws.PublishEvent(ctx, a.Q, ws.Event{Type: "message_created", Data: v, Recipients: ch.Users})
		c.JSON(http.StatusOK, v)
	}
}

// List returns a chat's history in the order it was written, each message
// with its sender and owning chat expanded.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		chatID := c.Param("chatId")
		ch, err := a.DB.ChatByID(ctx, chatID)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "chat_not_found", "chat not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("get chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		cv, err := chats.NewView(ctx, a.DB, ch)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("expand chat")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		msgs, err := a.DB.MessagesForChat(ctx, chatID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("list messages")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		out := make([]*View, 0, len(msgs))
		senders := map[string]models.User{}
		for _, m := range msgs {
			v := &View{ID: m.ID, Message: m.Message, Chat: cv, CreatedAt: m.CreatedAt}
			if u, ok := senders[m.Sender]; ok {
				v.Sender = u
			} else if su, err := a.DB.UserByID(ctx, m.Sender); err == nil {
				senders[m.Sender] = *su
				v.Sender = *su
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, out)
	}
}
