// Package tickets implements ticket CRUD. Status and priority are accepted
// as-is; the only defaulting is status "Open" on create.
package tickets

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/metrics"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

type createTicketReq struct {
	UserID        string   `json:"userId" binding:"required"`
	UserFirstname string   `json:"userfirstname" binding:"required"`
	UserLastname  string   `json:"userlastname" binding:"required"`
	Issue         string   `json:"issue" binding:"required"`
	Description   string   `json:"description" binding:"required"`
	Status        string   `json:"status"`
	Department    string   `json:"department"`
	Assignee      []string `json:"assignee"`
	Priority      string   `json:"priority"`
	MaxTime       int      `json:"maxTime"`
	MinTime       int      `json:"minTime"`
}

// Create inserts a new ticket.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createTicketReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		t := models.Ticket{
			UserID:        in.UserID,
			UserFirstname: in.UserFirstname,
			UserLastname:  in.UserLastname,
			Issue:         in.Issue,
			Description:   in.Description,
			Status:        in.Status,
			Department:    in.Department,
			Assignee:      in.Assignee,
			Priority:      in.Priority,
			MaxTime:       in.MaxTime,
			MinTime:       in.MinTime,
		}
		ctx := c.Request.Context()
		if err := a.DB.InsertTicket(ctx, &t); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("insert ticket")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		metrics.TicketsCreatedTotal.Inc()
		c.JSON(http.StatusOK, t)
	}
}

// List returns every ticket.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts, err := a.DB.ListTickets(c.Request.Context())
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("list tickets")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, ts)
	}
}

// Get returns one ticket by id.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := a.DB.TicketByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "ticket_not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("get ticket")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// Update applies a partial update and returns the updated ticket.
func Update(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd models.TicketUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		t, err := a.DB.UpdateTicket(c.Request.Context(), c.Param("id"), upd)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "ticket_not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("update ticket")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// Delete removes a ticket.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.DB.DeleteTicket(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "ticket_not_found", "ticket not found", nil)
			return
		}
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("delete ticket")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "ticket deleted"})
	}
}
