package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"rfp-backend/models"
	"rfp-backend/service"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the document limit for the
// form fields and part headers.
const multipartOverhead = 1 << 20

// RFPService is what the handlers need from the service layer
type RFPService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.RFP, error)
	Get(ctx context.Context, id string) (*models.RFP, error)
	List(ctx context.Context, q service.ListQuery) ([]*models.RFP, error)
	Update(ctx context.Context, id string, raw service.RawFields) (*models.RFP, error)
	Delete(ctx context.Context, id string) error
}

// RFPHandler handles HTTP requests for RFPs
type RFPHandler struct {
	rfps           RFPService
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewRFPHandler creates a new RFP handler
func NewRFPHandler(rfps RFPService, logger *slog.Logger, maxUploadBytes int64) *RFPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &RFPHandler{rfps: rfps, logger: logger, maxUploadBytes: maxUploadBytes}
}

// respondError maps service errors to status codes. Only validation
// reasons are echoed back; everything else gets the generic message.
func (h *RFPHandler) respondError(c *gin.Context, err error, notFound, failed string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	default:
		h.logger.Error(failed,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failed})
	}
}

// CreateRFP handles POST /api/rfps
func (h *RFPHandler) CreateRFP(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	in := service.SubmitInput{}

	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
		file, err := fileHeader.Open()
		if err != nil {
			h.respondError(c, err, "", "Failed to create RFP")
			return
		}
		defer file.Close()

		in.File = &service.FileUpload{
			Filename:  fileHeader.Filename,
			MediaType: fileHeader.Header.Get("Content-Type"),
			Size:      fileHeader.Size,
			Content:   file,
		}
	case isBodyTooLarge(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// reported by the service as a missing document
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	in.RawFields = service.RawFields{
		ProjectName:    c.PostForm("projectName"),
		ProductSummary: c.PostForm("productSummary"),
		Deadline:       c.PostForm("deadline"),
		DurationDays:   c.PostForm("durationDays"),
		Status:         c.PostForm("status"),
	}

	rfp, err := h.rfps.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "", "Failed to create RFP")
		return
	}

	c.JSON(http.StatusCreated, rfp)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ListRFPs handles GET /api/rfps
func (h *RFPHandler) ListRFPs(c *gin.Context) {
	rfps, err := h.rfps.List(c.Request.Context(), service.ListQuery{
		View: c.Query("tab"),
		Sort: c.Query("sort"),
	})
	if err != nil {
		h.respondError(c, err, "", "Failed to list RFPs")
		return
	}

	c.JSON(http.StatusOK, rfps)
}

// GetRFP handles GET /api/rfps/:id
func (h *RFPHandler) GetRFP(c *gin.Context) {
	rfp, err := h.rfps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Not found", "Internal server error")
		return
	}

	c.JSON(http.StatusOK, rfp)
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// UpdateRFPRequest is the body of PUT /api/rfps/:id
type UpdateRFPRequest struct {
	ProjectName    string     `json:"projectName"`
	ProductSummary string     `json:"productSummary"`
	Deadline       string     `json:"deadline"`
	DurationDays   flexString `json:"durationDays"`
	Status         string     `json:"status"`
}

// UpdateRFP handles PUT /api/rfps/:id
func (h *RFPHandler) UpdateRFP(c *gin.Context) {
	var req UpdateRFPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	rfp, err := h.rfps.Update(c.Request.Context(), c.Param("id"), service.RawFields{
		ProjectName:    req.ProjectName,
		ProductSummary: req.ProductSummary,
		Deadline:       req.Deadline,
		DurationDays:   string(req.DurationDays),
		Status:         req.Status,
	})
	if err != nil {
		h.respondError(c, err, "RFP not found", "Failed to update RFP")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "RFP updated successfully",
		"rfp":     rfp,
	})
}

// DeleteRFP handles DELETE /api/rfps/:id
func (h *RFPHandler) DeleteRFP(c *gin.Context) {
	if err := h.rfps.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "RFP not found", "Failed to delete RFP")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "RFP deleted successfully"})
}
