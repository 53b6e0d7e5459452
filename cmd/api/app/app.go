package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/tinkingtin/tinkingtin-go/internal/store"
)

// Config holds API configuration values.
type Config struct {
	Addr          string
	Env           string
	JWTSecret     string
	MongoURL      string
	MongoDBName   string
	RedisAddr     string
	ResetLinkBase string
	MinIOEndpoint string
	MinIOAccess   string
	MinIOSecret   string
	MinIOBucket   string
	MinIOUseSSL   bool
	// Filesystem object store for dev/local
	FileStorePath  string
	RateLimitRPS   float64
	RateLimitBurst int
	// Testing helpers
	TestBypassAuth bool
}

// GetEnv returns the environment variable value or default.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetConfig builds Config from environment.
func GetConfig() Config {
	cfg := Config{
		Addr:           GetEnv("ADDR", ":5000"),
		Env:            GetEnv("ENV", "dev"),
		JWTSecret:      GetEnv("JWT_KEY", ""),
		MongoURL:       GetEnv("MONGO_URL", ""),
		MongoDBName:    GetEnv("MONGO_DB", "tinkingtin"),
		RedisAddr:      GetEnv("REDIS_ADDR", ""),
		ResetLinkBase:  GetEnv("RESET_LINK_BASE", "http://localhost:3000/reset-password"),
		MinIOEndpoint:  GetEnv("MINIO_ENDPOINT", ""),
		MinIOAccess:    GetEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecret:    GetEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    GetEnv("MINIO_BUCKET", "images"),
		MinIOUseSSL:    GetEnv("MINIO_USE_SSL", "false") == "true",
		FileStorePath:  GetEnv("FILESTORE_PATH", ""),
		TestBypassAuth: GetEnv("TEST_BYPASS_AUTH", "false") == "true",
	}
	if v, err := strconv.ParseFloat(GetEnv("RATE_LIMIT_RPS", "0"), 64); err == nil {
		cfg.RateLimitRPS = v
	}
	if v, err := strconv.Atoi(GetEnv("RATE_LIMIT_BURST", "0")); err == nil {
		cfg.RateLimitBurst = v
	}
	return cfg
}

// ObjectStore wraps the subset of MinIO we need for tests.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// FsObjectStore implements ObjectStore on the local filesystem for
// development and testing.
type FsObjectStore struct {
	Base string
}

func (f *FsObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	_ = ctx
	// Clean and constrain paths within base to prevent traversal
	base := filepath.Clean(f.Base)
	dir := base
	if bucketName != "" {
		dir = filepath.Join(base, bucketName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return minio.UploadInfo{}, err
	}
	clean := filepath.Clean(filepath.Join(dir, objectName))
	if !strings.HasPrefix(clean, dir+string(os.PathSeparator)) && clean != dir {
		return minio.UploadInfo{}, os.ErrPermission
	}
	tmp := clean + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	defer out.Close()
	if _, err := io.Copy(out, reader); err != nil {
		_ = os.Remove(tmp)
		return minio.UploadInfo{}, err
	}
	if err := os.Rename(tmp, clean); err != nil {
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *FsObjectStore) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	_ = ctx
	_ = opts
	base := filepath.Clean(f.Base)
	dir := base
	if bucketName != "" {
		dir = filepath.Join(base, bucketName)
	}
	clean := filepath.Clean(filepath.Join(dir, objectName))
	if !strings.HasPrefix(clean, dir+string(os.PathSeparator)) && clean != dir {
		return os.ErrPermission
	}
	return os.Remove(clean)
}

// App wires dependencies and the Gin router.
type App struct {
	Cfg Config
	DB  store.Store
	R   *gin.Engine
	M   ObjectStore
	Q   *redis.Client
}

// NewApp constructs an App with injected dependencies.
func NewApp(cfg Config, db store.Store, objects ObjectStore, q *redis.Client) *App {
	a := &App{Cfg: cfg, DB: db, R: gin.New(), M: objects, Q: q}
	a.R.Use(gin.Recovery())
	a.R.Use(RequestID())
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		rl := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		a.R.Use(RateLimit(rl))
	}
	a.R.Use(Logger())
	a.R.Use(Errors())
	return a
}
