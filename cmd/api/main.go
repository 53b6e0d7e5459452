package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/auth"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/chats"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/comments"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/messages"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/metrics"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/notifications"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/reset"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/tickets"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/uploads"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/users"
	"github.com/tinkingtin/tinkingtin-go/cmd/api/ws"
	"github.com/tinkingtin/tinkingtin-go/internal/memstore"
	"github.com/tinkingtin/tinkingtin-go/internal/mongostore"
	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := app.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_KEY is required")
	}

	ctx := context.Background()

	var db store.Store
	if cfg.MongoURL != "" {
		ms, err := mongostore.Connect(ctx, cfg.MongoURL, cfg.MongoDBName)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect")
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("mongo indexes")
		}
		defer ms.Close(ctx)
		db = ms
	} else {
		log.Warn().Msg("MONGO_URL not set, using in-memory store")
		db = memstore.New()
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
	}

	var objects app.ObjectStore
	if cfg.MinIOEndpoint != "" {
		mc, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
		objects = mc
	} else if cfg.FileStorePath != "" {
		objects = &app.FsObjectStore{Base: cfg.FileStorePath}
	}

	a := app.NewApp(cfg, db, objects, rdb)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)
	routes(a, hub)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func routes(a *app.App, hub *ws.Hub) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	a.R.GET("/metrics", metrics.Handler())
	if a.Cfg.FileStorePath != "" {
		// FsObjectStore writes under <base>/<bucket>/.
		a.R.Static("/images", filepath.Join(a.Cfg.FileStorePath, a.Cfg.MinIOBucket))
	}

	r := a.R.Group("/")
	r.Use(auth.Optional(a))

	ag := r.Group("/auth")
	ag.POST("/register", auth.Register(a))
	ag.POST("/login", auth.Login(a))
	ag.GET("/", auth.Required(), auth.Search(a))

	r.POST("/forgot-password/", reset.Forgot(a))
	r.POST("/reset-password/:id/:token", reset.Reset(a))

	ug := r.Group("/user")
	ug.GET("/users", users.List(a))
	ug.GET("/:id", users.Get(a))
	ug.PUT("/assign/:id", auth.Required(), users.Assign(a))
	ug.PUT("/:id", auth.Required(), users.Update(a))
	ug.DELETE("/:id", auth.Required(), users.Delete(a))

	tg := r.Group("/ticket")
	tg.POST("/", tickets.Create(a))
	tg.GET("/tickets", tickets.List(a))
	tg.GET("/:id", tickets.Get(a))
	tg.PUT("/:id", tickets.Update(a))
	tg.DELETE("/:id", tickets.Delete(a))

	cg := r.Group("/comment")
	cg.POST("/", comments.Create(a))
	cg.GET("/comments", comments.List(a))
	cg.GET("/:id", comments.Get(a))
	cg.GET("/:id/replies", comments.Replies(a))
	cg.PUT("/:id", comments.Update(a))
	cg.PUT("/:id/reply", comments.AddReply(a))
	cg.PUT("/:id/:replyId", comments.EditReply(a))
	cg.DELETE("/:id", comments.Delete(a))
	cg.DELETE("/:id/:replyId", comments.DeleteReply(a))

	// Notification routes live at the root, matching the paths the frontend
	// already calls.
	r.POST("/", auth.Required(), notifications.Create(a))
	r.GET("/notifs", auth.Required(), notifications.List(a))
	r.DELETE("/:id", auth.Required(), notifications.Delete(a))

	chg := r.Group("/chat", auth.Required())
	chg.POST("/", chats.Access(a))
	chg.GET("/", chats.Fetch(a))
	chg.POST("/group", chats.CreateGroup(a))
	chg.PUT("/group/rename", chats.Rename(a))
	chg.PUT("/group/add", chats.AddMember(a))
	chg.PUT("/group/remove", chats.RemoveMember(a))

	mg := r.Group("/message", auth.Required())
	mg.POST("/", messages.Send(a))
	mg.GET("/:chatId", messages.List(a))

	r.POST("/upload", auth.Required(), uploads.Upload(a))

	r.GET("/ws", serveWS(a, hub))
}

// serveWS authenticates the connection, upgrades it and registers the client
// with the hub. The token may come from the Authorization header or, since
// browsers cannot set headers on WebSocket dials, a ?token= query parameter.
func serveWS(a *app.App, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		if id, ok := auth.Current(c); ok {
			userID = id.ID
		} else if t := c.Query("token"); t != "" {
			claims, err := auth.ParseClaims(a.Cfg.JWTSecret, t)
			if err != nil {
				app.AbortError(c, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
				return
			}
			userID = claims.ID
		} else {
			app.AbortError(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
			return
		}
		conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := ws.NewClient(hub, conn, userID)
		hub.Register(client)
		go client.WritePump(c.Request.Context())
		client.ReadPump()
	}
}
