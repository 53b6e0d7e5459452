// Package auth implements registration, login, the bearer-token middleware
// and the user search endpoint.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/metrics"
	"github.com/tinkingtin/tinkingtin-go/internal/models"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// Identity is the authenticated caller attached to the gin context.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Claims is the payload of issued identity tokens.
type Claims struct {
	Username string `json:"username"`
	ID       string `json:"id"`
	jwt.RegisteredClaims
}

const tokenTTL = time.Hour

// IssueToken signs an identity token for u.
func IssueToken(secret string, u *models.User) (string, error) {
	claims := Claims{
		Username: u.Username,
		ID:       u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// IssueResetToken signs a short-lived token carrying only the user id, used
// in password-reset links.
func IssueResetToken(secret, userID string) (string, error) {
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseClaims validates tokenStr against secret and returns its claims.
func ParseClaims(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenInvalidClaims
		}
		return nil, err
	}
	return claims, nil
}

// Current returns the identity attached by the middleware, if any.
func Current(c *gin.Context) (Identity, bool) {
	v, ok := c.Get("identity")
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// Optional attaches the caller's identity when a bearer token is present.
// A request without a token passes through anonymously; a request with an
// invalid or expired token is rejected outright.
func Optional(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.TestBypassAuth {
			c.Set("identity", Identity{ID: "test-user", Username: "test@gmail.com"})
			c.Set("user_id", "test-user")
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(h, "Bearer ") {
			app.AbortError(c, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
			return
		}
		claims, err := ParseClaims(a.Cfg.JWTSecret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			app.AbortError(c, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
			return
		}
		c.Set("identity", Identity{ID: claims.ID, Username: claims.Username})
		// For the request logger, which cannot depend on this package.
		c.Set("user_id", claims.ID)
		c.Next()
	}
}

// Required rejects requests that carry no identity.
func Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Current(c); !ok {
			app.AbortError(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
			return
		}
		c.Next()
	}
}

type registerReq struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Firstname  string `json:"firstname" binding:"required"`
	Lastname   string `json:"lastname" binding:"required"`
	IsAdmin    bool   `json:"isAdmin"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// Register creates a user and returns it with a fresh token.
func Register(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ctx := c.Request.Context()
		if _, err := a.DB.UserByUsername(ctx, req.Username); err == nil {
			app.AbortError(c, http.StatusBadRequest, "user_exists", "user already exists", nil)
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Ctx(ctx).Error().Err(err).Msg("lookup user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 10)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("hash password")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		u := models.User{
			Username:   req.Username,
			Password:   string(hash),
			Firstname:  req.Firstname,
			Lastname:   req.Lastname,
			IsAdmin:    req.IsAdmin,
			Role:       req.Role,
			Department: req.Department,
		}
		if err := a.DB.InsertUser(ctx, &u); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("insert user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		token, err := IssueToken(a.Cfg.JWTSecret, &u)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("sign token")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		metrics.UsersRegisteredTotal.Inc()
		c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
	}
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns the user with a fresh token. An
// unknown username is a 404; a wrong password is a 400.
func Login(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginReq
		if err := c.ShouldBindJSON(&req); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "invalid request body", app.FieldErrors(err))
			return
		}
		ctx := c.Request.Context()
		u, err := a.DB.UserByUsername(ctx, req.Username)
		if errors.Is(err, store.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "user_not_found", "user not found", nil)
			return
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("lookup user")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
			app.AbortError(c, http.StatusBadRequest, "wrong_password", "wrong password", nil)
			return
		}
		token, err := IssueToken(a.Cfg.JWTSecret, u)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("sign token")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
	}
}

// Search finds users matching ?search= against username, firstname and
// lastname, excluding the caller.
func Search(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := Current(c)
		users, err := a.DB.SearchUsers(c.Request.Context(), c.Query("search"), id.ID)
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("search users")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}
