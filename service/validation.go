package service

import (
	"errors"
	"io"
	"math"
	"mime"
	"strconv"
	"strings"
	"time"

	"rfp-backend/models"

	"github.com/araddon/dateparse"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxUploadBytes is the largest accepted document
const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

const (
	msgFileRequired    = "RFP document (file) is required"
	msgInvalidFileType = "Invalid file type. Only PDF, DOC, and DOCX files are allowed."
	msgFileTooLarge    = "File too large"
	msgTextRequired    = "projectName and productSummary are required"
	msgDeadline        = "deadline must be YYYY-MM-DD"
	msgDuration        = "durationDays must be a positive number"
	msgDurationWhole   = "durationDays must be a whole number of days"
	msgStatus          = "status must be open|extended|closed"
)

var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true, // .doc
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true, // .docx
}

// sniffedAliases are detected types that stand for an allowed type
var sniffedAliases = map[string]bool{
	"application/x-ole-storage": true, // legacy .doc container
}

const sniffLen = 3072

// RawFields is RFP metadata as submitted by a client, before parsing
type RawFields struct {
	ProjectName    string
	ProductSummary string
	Deadline       string
	DurationDays   string
	Status         string
}

// FileUpload is an attached document. Content must be positioned at the start.
type FileUpload struct {
	Filename  string
	MediaType string
	Size      int64
	Content   io.ReadSeeker
}

// normalizeMediaType lower-cases the type and drops parameters
func normalizeMediaType(raw string) string {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mt
}

// ValidateDocument checks presence, declared media type and size
func ValidateDocument(file *FileUpload, maxBytes int64) error {
	if file == nil || file.Content == nil {
		return invalid(msgFileRequired)
	}
	if !allowedMimeTypes[normalizeMediaType(file.MediaType)] {
		return invalid(msgInvalidFileType)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if file.Size > maxBytes {
		return invalid(msgFileTooLarge)
	}
	return nil
}

// sniffDocument inspects the leading bytes and rewinds the content
func sniffDocument(file *FileUpload) error {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Content, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if _, err := file.Content.Seek(0, io.SeekStart); err != nil {
		return err
	}

	for mt := mimetype.Detect(buf[:n]); mt != nil; mt = mt.Parent() {
		if allowedMimeTypes[mt.String()] || sniffedAliases[mt.String()] {
			return nil
		}
	}
	return invalid(msgInvalidFileType)
}

var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseDeadline accepts ISO dates (date-only means UTC midnight) and any
// other representation dateparse can read without ambiguity. Bare digit
// strings such as unix epochs or a lone year are rejected. The result is
// truncated to the microsecond precision Postgres keeps.
func ParseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid(msgDeadline)
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}

	if allDigits(raw) {
		return time.Time{}, invalid(msgDeadline)
	}
	t, err := dateparse.ParseStrict(raw)
	if err != nil {
		return time.Time{}, invalid(msgDeadline)
	}
	return t.UTC().Truncate(time.Microsecond), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseDurationDays accepts any finite whole number >= 1
func ParseDurationDays(raw string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f > math.MaxInt32 {
		return 0, invalid(msgDuration)
	}
	if f != math.Trunc(f) {
		return 0, invalid(msgDurationWhole)
	}
	return int(f), nil
}

// ParseStatus lower-cases the status and defaults to open
func ParseStatus(raw string) (models.RFPStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return models.StatusOpen, nil
	}
	status := models.RFPStatus(raw)
	if !status.Valid() {
		return "", invalid(msgStatus)
	}
	return status, nil
}

// ParseFields applies the metadata rules in order; the first failure wins
func ParseFields(raw RawFields) (models.RFPFields, error) {
	projectName := strings.TrimSpace(raw.ProjectName)
	productSummary := strings.TrimSpace(raw.ProductSummary)
	if projectName == "" || productSummary == "" {
		return models.RFPFields{}, invalid(msgTextRequired)
	}

	deadline, err := ParseDeadline(raw.Deadline)
	if err != nil {
		return models.RFPFields{}, err
	}

	duration, err := ParseDurationDays(raw.DurationDays)
	if err != nil {
		return models.RFPFields{}, err
	}

	status, err := ParseStatus(raw.Status)
	if err != nil {
		return models.RFPFields{}, err
	}

	return models.RFPFields{
		ProjectName:    projectName,
		ProductSummary: productSummary,
		Deadline:       deadline,
		DurationDays:   duration,
		Status:         status,
	}, nil
}

// ParseView resolves a tab name; unknown names fall back to recent
func ParseView(raw string) models.RFPView {
	switch v := models.RFPView(raw); v {
	case models.ViewCompleted, models.ViewExtended:
		return v
	default:
		return models.ViewRecent
	}
}

// ParseSort resolves a sort key; unknown keys fall back to upload time
func ParseSort(raw string) models.RFPSort {
	if models.RFPSort(raw) == models.SortDeadline {
		return models.SortDeadline
	}
	return models.SortUploadedAt
}
