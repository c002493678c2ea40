package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"rfp-backend/events"
	"rfp-backend/models"
	"rfp-backend/repository"
	"rfp-backend/storage"

	"github.com/google/uuid"
)

// memStore is an in-memory RFPStore and ExpiryStore
type memStore struct {
	mu   sync.Mutex
	rfps map[string]*models.RFP

	createErr  error
	deleteErr  error
	closeErrs  map[string]error
	lastFilter repository.ListFilter
	creates    int
}

func newMemStore() *memStore {
	return &memStore{rfps: map[string]*models.RFP{}, closeErrs: map[string]error{}}
}

func (m *memStore) put(rfp *models.RFP) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rfp
	m.rfps[rfp.ID] = &cp
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rfps)
}

func (m *memStore) Create(_ context.Context, rfp *models.RFP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	rfp.ID = uuid.NewString()
	rfp.CreatedAt = time.Now().UTC()
	rfp.UpdatedAt = rfp.CreatedAt
	cp := *rfp
	m.rfps[rfp.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rfp, ok := m.rfps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rfp
	return &cp, nil
}

func (m *memStore) List(_ context.Context, f repository.ListFilter) ([]*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	var out []*models.RFP
	for _, rfp := range m.rfps {
		cp := *rfp
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id string, fields models.RFPFields) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rfp, ok := m.rfps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rfp.ProjectName = fields.ProjectName
	rfp.ProductSummary = fields.ProductSummary
	rfp.Deadline = fields.Deadline
	rfp.DurationDays = fields.DurationDays
	rfp.Status = fields.Status
	rfp.UpdatedAt = time.Now().UTC()
	cp := *rfp
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.rfps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rfps, id)
	return nil
}

func (m *memStore) ListExpiredIDs(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, rfp := range m.rfps {
		if rfp.Status != models.StatusClosed && rfp.Deadline.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) CloseIfExpired(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.closeErrs[id]; err != nil {
		return false, err
	}
	rfp, ok := m.rfps[id]
	if !ok || rfp.Status == models.StatusClosed || !rfp.Deadline.Before(now) {
		return false, nil
	}
	rfp.Status = models.StatusClosed
	return true, nil
}

func (m *memStore) status(id string) models.RFPStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rfps[id].Status
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyStorage wraps a Storage and fails selected operations
type flakyStorage struct {
	storage.Storage
	mu        sync.Mutex
	uploadErr error
	deleteErr error
	uploads   int
	deleted   []string
}

func (f *flakyStorage) Upload(ctx context.Context, fileID uuid.UUID, filename, contentType string, data io.Reader) (string, error) {
	f.mu.Lock()
	f.uploads++
	uploadErr := f.uploadErr
	f.mu.Unlock()
	if uploadErr != nil {
		return "", uploadErr
	}
	return f.Storage.Upload(ctx, fileID, filename, contentType, data)
}

func (f *flakyStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	deleteErr := f.deleteErr
	f.mu.Unlock()
	if deleteErr != nil {
		return deleteErr
	}
	return f.Storage.Delete(ctx, key)
}

var errBoom = errors.New("boom")
