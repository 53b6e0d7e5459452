// Package notifications implements in-app notifications. Creation fans out a
// realtime event so connected clients refresh without polling.
package notifications

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/metrics"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/ws"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

type createReq struct {
	SenderName        string `json:"senderName" binding:"required"`
	ReceiverFirstName string `json:"receiverFirstName" binding:"required"`
	ReceiverLastName  string `json:"receiverLastName" binding:"required"`
	Notification      string `json:"notification" binding:"required"`
	Context           string `json:"context"`
}

// Create stores a notification and publishes a notification_created event.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		n := models.Notification{
			SenderName:        in.SenderName,
			ReceiverFirstName: in.ReceiverFirstName,
			ReceiverLastName:  in.ReceiverLastName,
			Notification:      in.Notification,
			Context:           in.Context,
		}
		ctx := c.Request.Context()
		if err := a.DB.InsertNotification(ctx, &n); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("insert notification")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		metrics.NotificationsCreatedTotal.Inc()
		ws.PublishEvent(ctx, a.Q, ws.Event{Type: "notification_created", Data: n})
		c.JSON(http.StatusOK, n)
	}
}

// List returns every notification.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ns, err := a.DB.ListNotifications(c.Request.Context())
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("list notifications")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, ns)
	}
}

// Delete removes a notification and returns the removed document.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := a.DB.DeleteNotification(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "notification_not_found", "notification not found", nil)
			return
		}
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("delete notification")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}
