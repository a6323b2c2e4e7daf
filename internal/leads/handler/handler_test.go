package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/service"
	"crm_pipeline_backend/internal/leads/store"
	"crm_pipeline_backend/internal/leads/transport"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type memoryRepo struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	activities []domain.Activity
}

func (r *memoryRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.TenantID != tenantID {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *memoryRepo) ListPage(ctx context.Context, tenantID uuid.UUID, filter domain.Filter, offset, limit int) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.TenantID == tenantID && filter.Matches(l) {
			out = append(out, l.Clone())
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *memoryRepo) Update(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || l.TenantID != tenantID {
		return domain.Lead{}, repository.ErrNotFound
	}
	if l.Version != expectedVersion {
		return domain.Lead{}, repository.ErrStaleVersion
	}
	updated := patch.Apply(l)
	updated.Version++
	r.leads[id] = updated
	return updated.Clone(), nil
}

func (r *memoryRepo) RecordActivity(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, activity)
	return nil
}

type testServer struct {
	engine   *gin.Engine
	repo     *memoryRepo
	tenantID uuid.UUID
	lead     domain.Lead
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tenantID := uuid.New()
	lead := domain.Lead{
		ID:             uuid.New(),
		TenantID:       tenantID,
		DisplayName:    "Ana",
		Phone:          "+31612345678",
		Status:         domain.StatusNegotiating,
		EstimatedValue: 12_000,
		Version:        1,
		CreatedAt:      time.Now().Add(-48 * time.Hour),
	}
	repo := &memoryRepo{leads: map[uuid.UUID]domain.Lead{lead.ID: lead}}

	log := logger.Discard()
	st := store.New(repo, store.Options{ReconcileDelay: time.Hour}, log, nil)
	t.Cleanup(st.Close)
	svc := service.New(st, repo, events.NewInMemoryBus(log), log, nil)

	val := validator.New()
	if err := RegisterValidations(val); err != nil {
		t.Fatalf("RegisterValidations() error = %v", err)
	}

	engine := gin.New()
	group := engine.Group("/pipeline", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	})
	New(svc, val).RegisterRoutes(group)

	return &testServer{engine: engine, repo: repo, tenantID: tenantID, lead: lead}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestMoveLeadToWon(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/pipeline/leads/"+s.lead.ID.String()+"/move", `{"status":"Won"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp transport.LeadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(domain.StatusWon) {
		t.Errorf("status = %q, want %q", resp.Status, domain.StatusWon)
	}
	if resp.ClosedAt == nil {
		t.Error("closedAt not set")
	}
	if resp.WinProbability != 100 {
		t.Errorf("winProbability = %d, want 100", resp.WinProbability)
	}
	if len(s.repo.activities) != 1 {
		t.Errorf("activities = %d, want 1", len(s.repo.activities))
	}
}

func TestMoveLeadAfterBackgroundWrite(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/pipeline/columns", ""); rec.Code != http.StatusOK {
		t.Fatalf("columns status = %d", rec.Code)
	}
	// An automation run updates the row without touching the cache.
	s.repo.mu.Lock()
	l := s.repo.leads[s.lead.ID]
	l.Notes = "follow-up sent"
	l.Version += 2
	s.repo.leads[s.lead.ID] = l
	s.repo.mu.Unlock()

	for _, status := range []string{"proposal", "won"} {
		rec := s.do(http.MethodPost, "/pipeline/leads/"+s.lead.ID.String()+"/move", `{"status":"`+status+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("move to %s: status = %d, body = %s", status, rec.Code, rec.Body.String())
		}
	}

	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if got := s.repo.leads[s.lead.ID]; got.Status != domain.StatusWon || got.Notes != "follow-up sent" {
		t.Errorf("stored lead = %+v", got)
	}
}

func TestMoveLeadValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "unknown status", path: "/pipeline/leads/" + s.lead.ID.String() + "/move", body: `{"status":"archived"}`},
		{name: "missing status", path: "/pipeline/leads/" + s.lead.ID.String() + "/move", body: `{}`},
		{name: "malformed json", path: "/pipeline/leads/" + s.lead.ID.String() + "/move", body: `{"status":`},
		{name: "bad id", path: "/pipeline/leads/not-a-uuid/move", body: `{"status":"won"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
	if len(s.repo.activities) != 0 {
		t.Errorf("rejected requests wrote %d activities", len(s.repo.activities))
	}
}

func TestMoveUnknownLead(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/pipeline/leads/"+uuid.NewString()+"/move", `{"status":"won"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body = %s", rec.Code, rec.Body.String())
	}
}

func TestColumns(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/pipeline/columns", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp transport.ColumnsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Columns) != len(domain.Statuses()) {
		t.Fatalf("columns = %d, want %d", len(resp.Columns), len(domain.Statuses()))
	}
	for _, col := range resp.Columns {
		want := 0
		if col.Status == string(domain.StatusNegotiating) {
			want = 1
		}
		if col.Count != want {
			t.Errorf("column %s count = %d, want %d", col.Status, col.Count, want)
		}
	}
	if resp.Summary.TotalLeads != 1 {
		t.Errorf("summary total = %d, want 1", resp.Summary.TotalLeads)
	}
}

func TestUpdateRejectsOutOfRangeProbability(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPatch, "/pipeline/leads/"+s.lead.ID.String(), `{"winProbability":140}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsRejectsUnknownPeriod(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/pipeline/metrics?period=forever", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = s.do(http.MethodGet, "/pipeline/metrics?period=last_7_days", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
}
