// Package reset implements the password-reset flow: a mail job carrying a
// signed single-purpose link, then the reset itself keyed by that token.
package reset

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// supportedDomains are the mail domains the worker has transports for.
var supportedDomains = []string{"@gmail.com", "@cit.edu"}

func domainSupported(username string) bool {
	for _, d := range supportedDomains {
		if strings.HasSuffix(username, d) {
			return true
		}
	}
	return false
}

func enqueueEmail(c *gin.Context, a *app.App, to, template string, data interface{}) error {
	job := struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}{
		Type: "send_email",
		Data: struct {
			To       string      `json:"to"`
			Template string      `json:"template"`
			Data     interface{} `json:"data"`
		}{to, template, data},
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return a.Q.RPush(c.Request.Context(), "jobs", b).Err()
}

type forgotReq struct {
	Username string `json:"username" binding:"required"`
}

// Forgot mails a reset link to the account's address.
func Forgot(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in forgotReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ctx := c.Request.Context()
		u, err := a.DB.UserByUsername(ctx, in.Username)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("lookup user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		if !domainSupported(u.Username) {
			app.AbortError(c, http.StatusBadRequest, "unsupported_domain", "mail domain not supported", nil)
			return
		}
		if a.Q == nil {
			log.Ctx(ctx).Error().Msg("mail queue not configured")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		token, err := auth.IssueResetToken(a.Cfg.JWTSecret, u.ID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("sign reset token")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		link := fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.Cfg.ResetLinkBase, "/"), u.ID, token)
		if err := enqueueEmail(c, a, u.Username, "password_reset", gin.H{"Link": link}); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("enqueue reset mail")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Email sent"})
	}
}

type resetReq struct {
	Password string `json:"password" binding:"required"`
}

// Reset verifies the link token and stores a fresh password hash. The token
// must have been minted for the user named in the path.
func Reset(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in resetReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		claims, err := auth.ParseClaims(a.Cfg.JWTSecret, c.Param("token"))
		if err != nil || claims.ID != c.Param("id") {
			app.AbortError(c, http.StatusBadRequest, "invalid_token", "invalid or expired reset token", nil)
			return
		}
		ctx := c.Request.Context()
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("hash password")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		err = a.DB.SetUserPassword(ctx, claims.ID, string(hash))
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("set password")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "password updated"})
	}
}
