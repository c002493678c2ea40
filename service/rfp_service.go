package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rfp-backend/events"
	"rfp-backend/metrics"
	"rfp-backend/models"
	"rfp-backend/repository"
	"rfp-backend/storage"

	"github.com/google/uuid"
)

// RFPStore is the record store the service depends on
type RFPStore interface {
	Create(ctx context.Context, rfp *models.RFP) error
	GetByID(ctx context.Context, id string) (*models.RFP, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.RFP, error)
	Update(ctx context.Context, id string, fields models.RFPFields) (*models.RFP, error)
	Delete(ctx context.Context, id string) error
}

// RFPService handles the RFP submission pipeline and record operations
type RFPService struct {
	store          RFPStore
	storage        storage.Storage
	publisher      events.Publisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
	maxUploadBytes int64
	sniffContent   bool
}

// RFPServiceOption is a functional option for RFPService
type RFPServiceOption func(*RFPService)

// WithRFPStore sets the record store
func WithRFPStore(store RFPStore) RFPServiceOption {
	return func(s *RFPService) {
		s.store = store
	}
}

// WithStorage sets the document blob store
func WithStorage(st storage.Storage) RFPServiceOption {
	return func(s *RFPService) {
		s.storage = st
	}
}

// WithPublisher sets the lifecycle event publisher
func WithPublisher(p events.Publisher) RFPServiceOption {
	return func(s *RFPService) {
		s.publisher = p
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) RFPServiceOption {
	return func(s *RFPService) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) RFPServiceOption {
	return func(s *RFPService) {
		s.logger = l
	}
}

// WithClock overrides the time source used by deadline-based views
func WithClock(now func() time.Time) RFPServiceOption {
	return func(s *RFPService) {
		s.now = now
	}
}

// WithUploadPolicy sets the size limit and whether file contents are sniffed
func WithUploadPolicy(maxBytes int64, sniffContent bool) RFPServiceOption {
	return func(s *RFPService) {
		if maxBytes > 0 {
			s.maxUploadBytes = maxBytes
		}
		s.sniffContent = sniffContent
	}
}

// NewRFPService creates a new RFP service
func NewRFPService(opts ...RFPServiceOption) *RFPService {
	s := &RFPService{
		publisher:      events.NopPublisher{},
		logger:         slog.Default(),
		now:            time.Now,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RFPService) ready() error {
	if s.store == nil {
		return errors.New("rfp store not set")
	}
	if s.storage == nil {
		return errors.New("document storage not set")
	}
	return nil
}

// SubmitInput is a new RFP as received from a client
type SubmitInput struct {
	RawFields
	File *FileUpload
}

// Submit validates the input, stores the document, then creates the
// record. Nothing is persisted unless both steps succeed.
func (s *RFPService) Submit(ctx context.Context, in SubmitInput) (*models.RFP, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rfp, err := s.submit(ctx, in)
	switch {
	case err == nil:
		s.metrics.ObserveSubmission(metrics.OutcomeCreated)
	case IsValidation(err):
		s.metrics.ObserveSubmission(metrics.OutcomeRejected)
	default:
		s.metrics.ObserveSubmission(metrics.OutcomeFailed)
	}
	return rfp, err
}

func (s *RFPService) submit(ctx context.Context, in SubmitInput) (*models.RFP, error) {
	if err := ValidateDocument(in.File, s.maxUploadBytes); err != nil {
		return nil, err
	}

	fields, err := ParseFields(in.RawFields)
	if err != nil {
		return nil, err
	}

	file := in.File
	if s.sniffContent {
		if err := sniffDocument(file); err != nil {
			if IsValidation(err) {
				return nil, err
			}
			return nil, &StorageError{Op: "read document", Err: err}
		}
	}

	mediaType := normalizeMediaType(file.MediaType)
	key, err := s.storage.Upload(ctx, uuid.New(), file.Filename, mediaType, file.Content)
	if err != nil {
		return nil, &StorageError{Op: "store document", Err: err}
	}

	rfp := &models.RFP{
		ProjectName:    fields.ProjectName,
		ProductSummary: fields.ProductSummary,
		Deadline:       fields.Deadline,
		DurationDays:   fields.DurationDays,
		Status:         fields.Status,
		Document: models.Document{
			FileName:   file.Filename,
			FileURL:    storage.PublicPath(key),
			MimeType:   mediaType,
			Size:       file.Size,
			StorageKey: key,
		},
	}

	if err := s.store.Create(ctx, rfp); err != nil {
		s.discardDocument(ctx, key)
		return nil, &StorageError{Op: "create rfp", Err: err}
	}

	s.logger.Info("RFP created",
		"rfp_id", rfp.ID,
		"status", rfp.Status,
		"storage_key", key,
		"size", rfp.Size)
	s.publish(ctx, events.Event{Type: events.TypeCreated, RFPID: rfp.ID, Status: rfp.Status, RFP: rfp})

	return rfp, nil
}

// discardDocument removes a blob best-effort, even if ctx was cancelled
func (s *RFPService) discardDocument(ctx context.Context, key string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("Failed to remove stored document",
			"storage_key", key,
			"error", err)
	}
}

func (s *RFPService) publish(ctx context.Context, evt events.Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now().UTC()
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish event",
			"type", evt.Type,
			"rfp_id", evt.RFPID,
			"error", err)
	}
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}

// Get retrieves an RFP by ID
func (s *RFPService) Get(ctx context.Context, id string) (*models.RFP, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rfp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError("get rfp", err)
	}
	return rfp, nil
}

// ListQuery holds the raw tab and sort parameters of a listing
type ListQuery struct {
	View string
	Sort string
}

// List returns the RFPs of a view in the requested order
func (s *RFPService) List(ctx context.Context, q ListQuery) ([]*models.RFP, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rfps, err := s.store.List(ctx, repository.ListFilter{
		View: ParseView(q.View),
		Sort: ParseSort(q.Sort),
		Now:  s.now(),
	})
	if err != nil {
		return nil, &StorageError{Op: "list rfps", Err: err}
	}
	if rfps == nil {
		rfps = []*models.RFP{}
	}
	return rfps, nil
}

// Update replaces the metadata of an existing RFP using the same rules
// as submission. The document is left untouched.
func (s *RFPService) Update(ctx context.Context, id string, raw RawFields) (*models.RFP, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	fields, err := ParseFields(raw)
	if err != nil {
		return nil, err
	}

	rfp, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return nil, mapStoreError("update rfp", err)
	}

	s.logger.Info("RFP updated", "rfp_id", rfp.ID, "status", rfp.Status)
	s.publish(ctx, events.Event{Type: events.TypeUpdated, RFPID: rfp.ID, Status: rfp.Status, RFP: rfp})

	return rfp, nil
}

// Delete removes the record, then best-effort removes its document.
// Success only depends on the record being gone.
func (s *RFPService) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	rfp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return mapStoreError("get rfp", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return mapStoreError("delete rfp", err)
	}

	if rfp.StorageKey != "" {
		s.discardDocument(ctx, rfp.StorageKey)
	}

	s.logger.Info("RFP deleted", "rfp_id", id)
	s.publish(ctx, events.Event{Type: events.TypeDeleted, RFPID: id})

	return nil
}
