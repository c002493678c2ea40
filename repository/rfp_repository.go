package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rfp-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an id does not resolve to an RFP
var ErrNotFound = errors.New("rfp not found")

const rfpColumns = `id::text, project_name, product_summary, deadline, duration_days, status,
		file_name, file_url, mime_type, size, storage_key,
		created_at, updated_at`

// ListFilter selects and orders RFPs for a listing
type ListFilter struct {
	View models.RFPView
	Sort models.RFPSort
	// Now is the reference time for deadline-based views
	Now time.Time
}

// RFPRepository handles database operations for RFPs
type RFPRepository struct {
	db *pgxpool.Pool
}

// NewRFPRepository creates a new RFP repository
func NewRFPRepository(db *pgxpool.Pool) *RFPRepository {
	return &RFPRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRFP(row rowScanner) (*models.RFP, error) {
	rfp := &models.RFP{}
	var status string
	err := row.Scan(
		&rfp.ID,
		&rfp.ProjectName,
		&rfp.ProductSummary,
		&rfp.Deadline,
		&rfp.DurationDays,
		&status,
		&rfp.FileName,
		&rfp.FileURL,
		&rfp.MimeType,
		&rfp.Size,
		&rfp.StorageKey,
		&rfp.CreatedAt,
		&rfp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rfp.Status = models.RFPStatus(status)
	// pgx decodes timestamptz in the local zone
	rfp.Deadline = rfp.Deadline.UTC()
	rfp.CreatedAt = rfp.CreatedAt.UTC()
	rfp.UpdatedAt = rfp.UpdatedAt.UTC()
	return rfp, nil
}

// Create inserts a new RFP and replaces it with the row as stored, so the
// caller sees exactly what a later GetByID returns.
func (r *RFPRepository) Create(ctx context.Context, rfp *models.RFP) error {
	query := `
		INSERT INTO rfps (
			project_name, product_summary, deadline, duration_days, status,
			file_name, file_url, mime_type, size, storage_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + rfpColumns

	stored, err := scanRFP(r.db.QueryRow(
		ctx, query,
		rfp.ProjectName,
		rfp.ProductSummary,
		rfp.Deadline,
		rfp.DurationDays,
		string(rfp.Status),
		rfp.FileName,
		rfp.FileURL,
		rfp.MimeType,
		rfp.Size,
		rfp.StorageKey,
	))
	if err != nil {
		return fmt.Errorf("failed to insert rfp: %w", err)
	}
	*rfp = *stored
	return nil
}

// GetByID retrieves an RFP by ID
func (r *RFPRepository) GetByID(ctx context.Context, id string) (*models.RFP, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + rfpColumns + ` FROM rfps WHERE id = $1::uuid`
	rfp, err := scanRFP(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rfp, nil
}

// buildListQuery translates a filter into SQL. "completed" also matches
// records whose deadline passed before the reconciler closed them.
func buildListQuery(f ListFilter) (string, []any) {
	query := `SELECT ` + rfpColumns + ` FROM rfps`
	var args []any
	argIndex := 1

	switch f.View {
	case models.ViewCompleted:
		query += fmt.Sprintf(" WHERE (status = $%d OR deadline < $%d)", argIndex, argIndex+1)
		args = append(args, string(models.StatusClosed), f.Now)
		argIndex += 2
	case models.ViewExtended:
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, string(models.StatusExtended))
		argIndex++
	}

	switch f.Sort {
	case models.SortDeadline:
		query += " ORDER BY deadline ASC, id"
	default:
		query += " ORDER BY created_at DESC, id"
	}

	return query, args
}

// List retrieves RFPs matching the filter
func (r *RFPRepository) List(ctx context.Context, f ListFilter) ([]*models.RFP, error) {
	query, args := buildListQuery(f)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rfps := make([]*models.RFP, 0)
	for rows.Next() {
		rfp, err := scanRFP(rows)
		if err != nil {
			return nil, err
		}
		rfps = append(rfps, rfp)
	}

	return rfps, rows.Err()
}

// Update replaces the mutable metadata of an RFP. The document is never touched.
func (r *RFPRepository) Update(ctx context.Context, id string, fields models.RFPFields) (*models.RFP, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `
		UPDATE rfps SET
			project_name = $2,
			product_summary = $3,
			deadline = $4,
			duration_days = $5,
			status = $6,
			updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING ` + rfpColumns

	rfp, err := scanRFP(r.db.QueryRow(
		ctx, query,
		id,
		fields.ProjectName,
		fields.ProductSummary,
		fields.Deadline,
		fields.DurationDays,
		string(fields.Status),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rfp: %w", err)
	}
	return rfp, nil
}

// Delete deletes an RFP record
func (r *RFPRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM rfps WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rfp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredIDs returns ids of RFPs past their deadline that are not closed yet
func (r *RFPRepository) ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id::text FROM rfps WHERE deadline < $1 AND status <> $2 ORDER BY deadline`

	rows, err := r.db.Query(ctx, query, now, string(models.StatusClosed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CloseIfExpired closes a single RFP if it is still expired and not closed.
// It reports whether a row was changed.
func (r *RFPRepository) CloseIfExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE rfps SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1::uuid AND status <> $2 AND deadline < $3`

	tag, err := r.db.Exec(ctx, query, id, string(models.StatusClosed), now)
	if err != nil {
		return false, fmt.Errorf("failed to close rfp %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
