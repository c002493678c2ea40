package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"rfp-backend/metrics"
	"rfp-backend/models"
	"rfp-backend/repository"
	"rfp-backend/service"
	"rfp-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mapStore is a minimal in-memory service.RFPStore
type mapStore struct {
	mu   sync.Mutex
	rfps map[string]*models.RFP
	fail error
}

func (m *mapStore) Create(_ context.Context, rfp *models.RFP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	rfp.ID = uuid.NewString()
	rfp.CreatedAt = time.Now().UTC()
	rfp.UpdatedAt = rfp.CreatedAt
	cp := *rfp
	m.rfps[rfp.ID] = &cp
	return nil
}

func (m *mapStore) GetByID(_ context.Context, id string) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	rfp, ok := m.rfps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rfp
	return &cp, nil
}

func (m *mapStore) List(context.Context, repository.ListFilter) ([]*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([]*models.RFP, 0, len(m.rfps))
	for _, rfp := range m.rfps {
		cp := *rfp
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mapStore) Update(_ context.Context, id string, f models.RFPFields) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	rfp, ok := m.rfps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rfp.ProjectName, rfp.ProductSummary = f.ProjectName, f.ProductSummary
	rfp.Deadline, rfp.DurationDays, rfp.Status = f.Deadline, f.DurationDays, f.Status
	cp := *rfp
	return &cp, nil
}

func (m *mapStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.rfps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rfps, id)
	return nil
}

type testServer struct {
	router  *gin.Engine
	store   *mapStore
	blobs   storage.Storage
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, maxUploadBytes int64) *testServer {
	t.Helper()
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &mapStore{rfps: map[string]*models.RFP{}}
	m := metrics.New()

	svc := service.NewRFPService(
		service.WithRFPStore(store),
		service.WithStorage(blobs),
		service.WithLogger(logger),
		service.WithUploadPolicy(maxUploadBytes, false),
	)

	router := NewRouter(RouterConfig{
		RFPs:    NewRFPHandler(svc, logger, maxUploadBytes),
		Files:   NewFileHandler(blobs, logger),
		Metrics: m,
		Logger:  logger,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &testServer{router: router, store: store, blobs: blobs, metrics: m}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	name        string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/rfps", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"projectName":    "Metro Line 4",
		"productSummary": "Signalling equipment",
		"deadline":       "2025-09-01",
		"durationDays":   "30",
	}
}

var pdf = &filePart{name: "tender.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4\nbody\n%%EOF")}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func (s *testServer) create(t *testing.T) map[string]any {
	t.Helper()
	rec := s.do(multipartRequest(t, validFields(), pdf))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	decode(t, rec, &created)
	return created
}

func TestCreateRFP(t *testing.T) {
	s := newTestServer(t, 0)
	created := s.create(t)

	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "Metro Line 4", created["projectName"])
	assert.Equal(t, "open", created["status"])
	assert.Equal(t, float64(30), created["durationDays"])
	assert.Equal(t, "tender.pdf", created["fileName"])
	assert.Equal(t, "application/pdf", created["mimeType"])
	assert.Equal(t, "2025-09-01T00:00:00Z", created["deadline"])
	assert.NotContains(t, created, "StorageKey")

	fileURL, _ := created["fileUrl"].(string)
	require.True(t, strings.HasPrefix(fileURL, storage.PublicPrefix), fileURL)

	// the document is retrievable at the returned url
	rec := s.do(httptest.NewRequest(http.MethodGet, fileURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(pdf.content), rec.Body.String())
}

func TestCreateRFP_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		fields func(map[string]string)
		file   *filePart
		want   string
	}{
		{"no file", nil, nil, "RFP document (file) is required"},
		{"bad type", nil, &filePart{name: "a.png", contentType: "image/png", content: []byte("png")}, "Invalid file type. Only PDF, DOC, and DOCX files are allowed."},
		{"bad deadline", func(f map[string]string) { f["deadline"] = "not-a-date" }, pdf, "deadline must be YYYY-MM-DD"},
		{"missing name", func(f map[string]string) { delete(f, "projectName") }, pdf, "projectName and productSummary are required"},
		{"bad duration", func(f map[string]string) { f["durationDays"] = "-1" }, pdf, "durationDays must be a positive number"},
		{"bad status", func(f map[string]string) { f["status"] = "draft" }, pdf, "status must be open|extended|closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0)
			fields := validFields()
			if tt.fields != nil {
				tt.fields(fields)
			}

			rec := s.do(multipartRequest(t, fields, tt.file))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
			assert.Empty(t, s.store.rfps)
		})
	}
}

func TestCreateRFP_NotMultipart(t *testing.T) {
	s := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/rfps", strings.NewReader(`{"projectName":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RFP document (file) is required", errorOf(t, rec))
}

func TestCreateRFP_TooLarge(t *testing.T) {
	t.Run("declared size over limit", func(t *testing.T) {
		s := newTestServer(t, 100)
		big := &filePart{name: "big.pdf", contentType: "application/pdf", content: bytes.Repeat([]byte("x"), 500)}

		rec := s.do(multipartRequest(t, validFields(), big))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File too large", errorOf(t, rec))
	})

	t.Run("body over limit", func(t *testing.T) {
		s := newTestServer(t, 100)
		huge := &filePart{name: "huge.pdf", contentType: "application/pdf", content: bytes.Repeat([]byte("x"), 2*multipartOverhead)}

		rec := s.do(multipartRequest(t, validFields(), huge))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File too large", errorOf(t, rec))
		assert.Empty(t, s.store.rfps)
	})
}

func TestCreateRFP_StoreFailure(t *testing.T) {
	s := newTestServer(t, 0)
	s.store.fail = errors.New("connection reset")

	rec := s.do(multipartRequest(t, validFields(), pdf))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to create RFP", errorOf(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestListRFPs(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/rfps", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s.create(t)
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/rfps?tab=completed&sort=deadline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	decode(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestGetRFP(t *testing.T) {
	s := newTestServer(t, 0)
	created := s.create(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/rfps/"+created["id"].(string), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decode(t, rec, &got)
	assert.Equal(t, created["id"], got["id"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/rfps/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", errorOf(t, rec))
}

func TestUpdateRFP(t *testing.T) {
	s := newTestServer(t, 0)
	created := s.create(t)
	path := "/api/rfps/" + created["id"].(string)

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	rec := put(`{"projectName":"Metro Line 5","productSummary":"Tracks","deadline":"2025-10-01","durationDays":45,"status":"extended"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Message string         `json:"message"`
		RFP     map[string]any `json:"rfp"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "RFP updated successfully", body.Message)
	assert.Equal(t, "Metro Line 5", body.RFP["projectName"])
	assert.Equal(t, float64(45), body.RFP["durationDays"])
	assert.Equal(t, "extended", body.RFP["status"])
	assert.Equal(t, created["fileUrl"], body.RFP["fileUrl"])

	rec = put(`{"projectName":"Metro Line 5","productSummary":"Tracks","deadline":"2025-10-01","durationDays":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "durationDays must be a positive number", errorOf(t, rec))

	rec = put(`{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/rfps/"+uuid.NewString(),
		strings.NewReader(`{"projectName":"a","productSummary":"b","deadline":"2025-10-01","durationDays":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec = s.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RFP not found", errorOf(t, rec))

	s.store.fail = errors.New("db down")
	rec = put(`{"projectName":"a","productSummary":"b","deadline":"2025-10-01","durationDays":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to update RFP", errorOf(t, rec))
}

func TestDeleteRFP(t *testing.T) {
	s := newTestServer(t, 0)
	created := s.create(t)
	path := "/api/rfps/" + created["id"].(string)

	rec := s.do(httptest.NewRequest(http.MethodDelete, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "RFP deleted successfully", body["message"])

	rec = s.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, created["fileUrl"].(string), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RFP not found", errorOf(t, rec))
}

func TestGetFile_Missing(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/files/nothing-here.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", errorOf(t, rec))

	rec = s.do(httptest.NewRequest(http.MethodGet, "/files/..", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"now":"2025-03-01T12:00:00Z"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found: GET /api/unknown", errorOf(t, rec))

	rec = s.do(httptest.NewRequest(http.MethodPatch, "/api/rfps/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found: PATCH /api/rfps/abc", errorOf(t, rec))
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t, 0)
	s.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := s.do(httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rfp_http_requests_total{code="500",method="GET",route="/boom"} 1`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 0)
	s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rfp_http_requests_total{code="200",method="GET",route="/health"} 1`)
	assert.Contains(t, rec.Body.String(), `rfp_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
}

func TestFlexString(t *testing.T) {
	var req UpdateRFPRequest
	require.NoError(t, json.Unmarshal([]byte(`{"durationDays":12}`), &req))
	assert.Equal(t, flexString("12"), req.DurationDays)

	require.NoError(t, json.Unmarshal([]byte(`{"durationDays":"7"}`), &req))
	assert.Equal(t, flexString("7"), req.DurationDays)

	require.NoError(t, json.Unmarshal([]byte(`{"durationDays":null}`), &req))
	assert.Equal(t, flexString(""), req.DurationDays)

	assert.Error(t, json.Unmarshal([]byte(`{"durationDays":[1]}`), &req))
}
