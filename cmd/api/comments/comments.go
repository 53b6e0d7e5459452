// Package comments implements ticket comments and their embedded replies.
// Reply mutations address one reply by id inside its parent document; a
// missing parent and a missing reply produce distinct not-found responses.
package comments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

func abortStoreErr(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, store.ErrReplyNotFound):
		app.AbortError(c, http.StatusNotFound, "reply_not_found", "reply not found", nil)
	case errors.Is(err, store.ErrNotFound):
		app.AbortError(c, http.StatusNotFound, "comment_not_found", "comment not found", nil)
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg(op)
		app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

type createCommentReq struct {
	TicketID string `json:"ticketId" binding:"required"`
	Username string `json:"username" binding:"required"`
	Comment  string `json:"comment" binding:"required"`
}

// Create inserts a new comment on a ticket.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createCommentReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		cm := models.Comment{TicketID: in.TicketID, Username: in.Username, Comment: in.Comment}
		if err := a.DB.InsertComment(c.Request.Context(), &cm); err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("insert comment")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// List returns every comment.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cms, err := a.DB.ListComments(c.Request.Context())
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("list comments")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, cms)
	}
}

// Get returns one comment by id, replies included.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cm, err := a.DB.CommentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortStoreErr(c, err, "get comment")
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// Update rewrites a comment's own fields. Replies are untouched.
func Update(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd models.CommentUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		cm, err := a.DB.UpdateComment(c.Request.Context(), c.Param("id"), upd)
		if err != nil {
			abortStoreErr(c, err, "update comment")
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// Delete removes a comment and all of its replies.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.DB.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
			abortStoreErr(c, err, "delete comment")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
	}
}

type addReplyReq struct {
	Username string `json:"username" binding:"required"`
	Reply    string `json:"reply" binding:"required"`
}

// AddReply appends a reply to a comment.
func AddReply(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in addReplyReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		cm, err := a.DB.AddReply(c.Request.Context(), c.Param("id"), models.Reply{Username: in.Username, Reply: in.Reply})
		if err != nil {
			abortStoreErr(c, err, "add reply")
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// Replies returns just the reply list of a comment.
func Replies(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cm, err := a.DB.CommentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortStoreErr(c, err, "get replies")
			return
		}
		c.JSON(http.StatusOK, cm.Replies)
	}
}

type editReplyReq struct {
	Reply string `json:"reply" binding:"required"`
}

// EditReply rewrites one reply's text in place.
func EditReply(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in editReplyReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		cm, err := a.DB.EditReply(c.Request.Context(), c.Param("id"), c.Param("replyId"), in.Reply)
		if err != nil {
			abortStoreErr(c, err, "edit reply")
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// DeleteReply removes exactly one reply by id.
func DeleteReply(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cm, err := a.DB.DeleteReply(c.Request.Context(), c.Param("id"), c.Param("replyId"))
		if err != nil {
			abortStoreErr(c, err, "delete reply")
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}
