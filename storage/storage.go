package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Download when no blob exists under the key
var ErrNotFound = errors.New("stored file not found")

// ErrInvalidKey is returned for keys that are not a single path element
var ErrInvalidKey = errors.New("invalid storage key")

// PublicPrefix is the URL prefix under which stored documents are served
const PublicPrefix = "/files/"

// Storage interface for document blob operations.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Upload stores a file and returns the generated storage key
	Upload(ctx context.Context, fileID uuid.UUID, filename, contentType string, data io.Reader) (string, error)

	// Download retrieves a file by storage key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file by storage key. A missing file is not an error.
	Delete(ctx context.Context, key string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Endpoint   string // Optional, for S3-compatible services
	S3PathStyle  bool
	AWSAccessKey string
	AWSSecretKey string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		localPath := cfg.LocalPath
		if localPath == "" {
			localPath = "./uploads"
		}
		return NewLocalStorage(localPath)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// PublicPath returns the retrieval path for a storage key
func PublicPath(key string) string {
	return PublicPrefix + key
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// generateStorageKey builds a collision-resistant blob name from the
// original base name and the file ID, keeping the original extension.
func generateStorageKey(fileID uuid.UUID, filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)
	baseName = unsafeNameChars.ReplaceAllString(baseName, "_")
	if baseName == "" {
		baseName = "document"
	}
	ext = unsafeNameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext != "" {
		ext = "." + ext
	}

	return fmt.Sprintf("%s-%s%s", baseName, fileID.String(), ext)
}

// validateKey rejects keys that could escape the blob namespace
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ContentTypeFor determines content type from filename
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
