// Package uploads stores images (profile pictures, group chat photos) in the
// configured object store and returns the URL they are served from.
package uploads

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"

	app "github.com/tinkingtin/tinkingtin-go/cmd/api/app"
)

// Upload accepts a multipart "file" field and stores it under a fresh name.
func Upload(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.M == nil {
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "object store not configured", nil)
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "file is required", nil)
			return
		}
		f, err := fh.Open()
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_body", "file is required", nil)
			return
		}
		defer f.Close()
		name := uuid.New().String() + filepath.Ext(fh.Filename)
		opts := minio.PutObjectOptions{ContentType: fh.Header.Get("Content-Type")}
		ctx := c.Request.Context()
		if _, err := a.M.PutObject(ctx, a.Cfg.MinIOBucket, name, f, fh.Size, opts); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("store upload")
			app.AbortError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"filename": name, "url": "/images/" + name})
	}
}
