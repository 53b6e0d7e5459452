// Package users exposes the user directory: listing, lookup, profile update,
// role assignment and account deletion.
package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// List returns every user.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := a.DB.ListUsers(c.Request.Context())
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("list users")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// Get returns one user by id.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := a.DB.UserByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("get user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// Update applies a partial profile update and re-issues a token so the
// client's claims stay in sync with the stored username.
func Update(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd models.UserUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ctx := c.Request.Context()
		u, err := a.DB.UpdateUser(ctx, c.Param("id"), upd)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("update user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		token, err := auth.IssueToken(a.Cfg.JWTSecret, u)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("sign token")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
	}
}

// Assign updates a user's role, department and admin flag. Unlike Update it
// verifies the subject exists before writing and does not mint a token.
func Assign(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd models.UserUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ctx := c.Request.Context()
		if _, err := a.DB.UserByID(ctx, c.Param("id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
				return
			}
			log.Ctx(ctx).Error().Err(err).Msg("get user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		u, err := a.DB.UpdateUser(ctx, c.Param("id"), upd)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("assign user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// Delete removes a user. Callers may delete themselves; deleting anyone else
// requires the Admin role.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := auth.Current(c)
		ctx := c.Request.Context()
		target := c.Param("id")
		if target != id.ID {
			caller, err := a.DB.UserByID(ctx, id.ID)
			if err != nil || (!caller.IsAdmin && caller.Role != "Admin") {
				app.AbortError(c, http.StatusForbidden, "forbidden", "forbidden", nil)
				return
			}
		}
		err := a.DB.DeleteUser(ctx, target)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("delete user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}
