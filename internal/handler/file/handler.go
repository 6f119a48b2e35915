package file

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/pkg/errors"
	"github.com/jwalitptl/clinic-reports/pkg/httputil"
)

// Store is the subset of the local blob store the download route needs.
type Store interface {
	Verify(token, bucket, path string) error
	Open(bucket, path string) (*blobstore.Blob, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the signed download route. Its prefix must match
// blobstore.FilesRoute.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/files/:bucket/*path", h.Download)
}

func (h *Handler) Download(c *gin.Context) {
	bucket := c.Param("bucket")
	path := strings.TrimPrefix(c.Param("path"), "/")

	token := c.Query("token")
	if token == "" {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return
	}
	if err := h.store.Verify(token, bucket, path); err != nil {
		httputil.RespondWithError(c, mapError(err))
		return
	}

	blob, err := h.store.Open(bucket, path)
	if err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, mapError(err))
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

func mapError(err error) error {
	switch {
	case stderrors.Is(err, blobstore.ErrInvalidToken):
		return errors.Unauthorized(err)
	case stderrors.Is(err, blobstore.ErrInvalidPath):
		return errors.NewBadRequest("invalid file path", err)
	case stderrors.Is(err, blobstore.ErrNotFound):
		return errors.NewNotFound("file", err)
	default:
		return errors.NewInternal(err)
	}
}
