package handler

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/service"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/response"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

type exportOpener interface {
	Open(token, ownerID string) (*service.ExportFile, error)
}

// ExportHandler serves stored exports behind signed tokens.
type ExportHandler struct {
	exports exportOpener
}

// NewExportHandler creates a new handler.
func NewExportHandler(exports exportOpener) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Download an export
// @Description The signed token is the credential; links expire
// @Tags Admin
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.exports.Open(c.Param("token"), "")
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link has expired"))
		case errors.Is(err, storage.ErrInvalidToken), errors.Is(err, os.ErrNotExist):
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export not found"))
		default:
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export"))
		}
		return
	}
	defer file.File.Close()

	c.Header("Content-Type", file.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Cache-Control", "no-store")
	if info, err := file.File.Stat(); err == nil {
		c.Header("Content-Length", fmt.Sprintf("%d", info.Size()))
	}
	if _, err := io.Copy(c.Writer, file.File); err != nil {
		_ = c.Error(err)
	}
}
