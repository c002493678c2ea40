package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"rfp-backend/storage"

	"github.com/gin-gonic/gin"
)

// FileHandler serves stored RFP documents
type FileHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(st storage.Storage, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{storage: st, logger: logger}
}

// GetFile handles GET /files/:name
func (h *FileHandler) GetFile(c *gin.Context) {
	key := c.Param("name")

	reader, err := h.storage.Download(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		h.logger.Error("Failed to download file", "storage_key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer reader.Close()

	contentType := storage.ContentTypeFor(key)
	c.DataFromReader(http.StatusOK, -1, contentType, reader, map[string]string{
		"Content-Disposition":    fmt.Sprintf("inline; filename=%q", key),
		"X-Content-Type-Options": "nosniff",
	})
}
