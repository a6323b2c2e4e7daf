// Package store keeps per-tenant lead snapshots in memory and applies writes optimistically.
//
// Snapshots are immutable slices: every write builds a new slice, so a reader holding a
// previous slice never observes a partial update. A write is visible to readers before the
// database round-trip starts, reverted if the database rejects it, and followed by a delayed
// reconciliation that reloads the tenant once no writes are in flight.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Repository is the authoritative lead source.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error)
	ListPage(ctx context.Context, tenantID uuid.UUID, filter domain.Filter, offset, limit int) ([]domain.Lead, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error)
}

// Options tunes caching and loading.
type Options struct {
	StaleAfter     time.Duration
	GCAfter        time.Duration
	ReconcileDelay time.Duration
	PageSize       int
	MaxRows        int
	Now            func() time.Time
}

// OptionsFrom reads the pipeline configuration.
func OptionsFrom(cfg config.PipelineConfig) Options {
	return Options{
		StaleAfter:     cfg.GetCacheStaleAfter(),
		GCAfter:        cfg.GetCacheGCAfter(),
		ReconcileDelay: cfg.GetReconcileDelay(),
		PageSize:       cfg.GetLoadPageSize(),
		MaxRows:        cfg.GetLoadMaxRows(),
	}
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = 2 * time.Minute
	}
	if o.GCAfter < o.StaleAfter {
		o.GCAfter = 5 * o.StaleAfter
	}
	if o.ReconcileDelay <= 0 {
		o.ReconcileDelay = 5 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 1000
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 20 * o.PageSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type cacheKey struct {
	tenantID uuid.UUID
	filter   string
}

func (k cacheKey) String() string {
	return k.tenantID.String() + "|" + k.filter
}

type entry struct {
	filter   domain.Filter
	leads    []domain.Lead // replaced, never mutated in place
	loadedAt time.Time
	readAt   time.Time
}

type pendingWrite struct {
	lead  domain.Lead
	token uint64
}

type tenantState struct {
	inFlight  int
	epoch     uint64 // bumped by every local write and every installed load
	overlay   map[uuid.UUID]pendingWrite
	reconcile *time.Timer
}

// Store is the in-process lead cache. It is safe for concurrent use.
type Store struct {
	repo    Repository
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	entries   map[cacheKey]*entry
	tenants   map[uuid.UUID]*tenantState
	nextToken uint64

	loads  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Store. m may be nil.
func New(repo Repository, opts Options, log *logger.Logger, m *metrics.Metrics) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		repo:    repo,
		opts:    opts.withDefaults(),
		log:     log,
		metrics: m,
		entries: make(map[cacheKey]*entry),
		tenants: make(map[uuid.UUID]*tenantState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops pending reconciliations and waits for background loads.
func (s *Store) Close() {
	s.mu.Lock()
	s.cancel()
	for _, ts := range s.tenants {
		if ts.reconcile != nil {
			ts.reconcile.Stop()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// List returns the cached snapshot for the filter. Only a missing snapshot blocks on a load;
// a stale one is returned as is and refreshed in the background.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID, filter domain.Filter) ([]domain.Lead, error) {
	key := cacheKey{tenantID: tenantID, filter: filter.Key()}
	now := s.opts.Now()

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.readAt = now
		leads := cloneLeads(e.leads)
		stale := now.Sub(e.loadedAt) >= s.opts.StaleAfter
		s.mu.Unlock()

		if stale {
			s.metrics.RecordRead("stale")
			s.revalidate(tenantID, filter)
		} else {
			s.metrics.RecordRead("fresh")
		}
		return leads, nil
	}
	s.mu.Unlock()

	s.metrics.RecordRead("miss")
	leads, err := s.load(ctx, key, filter, "cold", false)
	if err != nil {
		return nil, err
	}
	return cloneLeads(leads), nil
}

// Get returns the locally known version of a lead, including in-flight writes.
func (s *Store) Get(tenantID, leadID uuid.UUID) (domain.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.findLocked(tenantID, leadID)
	if !ok {
		return domain.Lead{}, false
	}
	return lead.Clone(), true
}

// Update applies patch to every cached snapshot of the tenant, then persists it.
// On failure the snapshots are restored and the repository error is returned unchanged.
// expectedVersion guards against concurrent writers; zero disables the check. A stale
// version means the snapshot is behind the database, so the lead is reloaded before returning.
func (s *Store) Update(ctx context.Context, tenantID, leadID uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error) {
	token, rollback := s.applyOptimistic(tenantID, leadID, patch)

	saved, err := s.repo.Update(ctx, tenantID, leadID, expectedVersion, patch)
	if err != nil {
		rollback()
		s.metrics.RecordRollback()
		s.log.StoreRollback(tenantID.String(), leadID.String(), err)
		if errors.Is(err, repository.ErrStaleVersion) {
			s.reloadLead(ctx, tenantID, leadID)
		}
		return domain.Lead{}, err
	}

	s.confirm(tenantID, token, saved)
	s.scheduleReconcile(tenantID)
	return saved.Clone(), nil
}

// Refresh reloads the tenant's snapshots. Without force only stale snapshots are reloaded.
func (s *Store) Refresh(ctx context.Context, tenantID uuid.UUID, force bool) error {
	now := s.opts.Now()

	s.mu.Lock()
	var keys []cacheKey
	var filters []domain.Filter
	for key, e := range s.entries {
		if key.tenantID != tenantID {
			continue
		}
		if force || now.Sub(e.loadedAt) >= s.opts.StaleAfter {
			keys = append(keys, key)
			filters = append(filters, e.filter)
		}
	}
	s.mu.Unlock()

	var errs []error
	for i, key := range keys {
		if _, err := s.load(ctx, key, filters[i], "refresh", force); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate schedules a reconcile for a write that bypassed the store.
func (s *Store) Invalidate(tenantID uuid.UUID) {
	s.scheduleReconcile(tenantID)
}

// RunJanitor evicts idle snapshots until ctx is cancelled.
func (s *Store) RunJanitor(ctx context.Context) {
	interval := s.opts.GCAfter / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.evictIdle(s.opts.Now()); evicted > 0 {
				s.log.Debug("lead store evicted idle snapshots", slog.Int("count", evicted))
			}
		}
	}
}

func (s *Store) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	live := make(map[uuid.UUID]bool)
	for key, e := range s.entries {
		if now.Sub(e.readAt) >= s.opts.GCAfter {
			delete(s.entries, key)
			evicted++
			continue
		}
		live[key.tenantID] = true
	}
	for tenantID, ts := range s.tenants {
		if !live[tenantID] && ts.inFlight == 0 && len(ts.overlay) == 0 && ts.reconcile == nil {
			delete(s.tenants, tenantID)
		}
	}
	return evicted
}

func (s *Store) revalidate(tenantID uuid.UUID, filter domain.Filter) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	key := cacheKey{tenantID: tenantID, filter: filter.Key()}
	go func() {
		defer s.wg.Done()
		if _, err := s.load(s.ctx, key, filter, "stale", false); err != nil && s.ctx.Err() == nil {
			s.log.Warn("lead store revalidation failed",
				slog.String("tenant_id", tenantID.String()),
				slog.String("error", err.Error()))
		}
	}()
}

func (s *Store) load(ctx context.Context, key cacheKey, filter domain.Filter, reason string, force bool) ([]domain.Lead, error) {
	if force {
		s.loads.Forget(key.String())
	}
	// The load is shared by every caller of the key, so it must not end with the first one.
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(key.String(), func() (interface{}, error) {
		s.metrics.RecordLoad(reason)
		leads, err := s.fetchAll(shared, key.tenantID, filter)
		if err != nil {
			return nil, err
		}
		return s.install(key, filter, leads), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Lead), nil
	}
}

func (s *Store) fetchAll(ctx context.Context, tenantID uuid.UUID, filter domain.Filter) ([]domain.Lead, error) {
	var all []domain.Lead
	for offset := 0; ; offset += s.opts.PageSize {
		if offset >= s.opts.MaxRows {
			s.log.Warn("lead load stopped at safety cap",
				slog.String("tenant_id", tenantID.String()),
				slog.Int("max_rows", s.opts.MaxRows))
			break
		}
		page, err := s.repo.ListPage(ctx, tenantID, filter, offset, s.opts.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < s.opts.PageSize {
			break
		}
	}
	return dedupeByRemoteJID(all), nil
}

// install stores freshly loaded leads. Writes still in flight win over the loaded rows,
// as do confirmed writes whose version is newer than what the load returned.
func (s *Store) install(key cacheKey, filter domain.Filter, loaded []domain.Lead) []domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenantLocked(key.tenantID)
	ts.epoch++

	current := make(map[uuid.UUID]domain.Lead)
	if e, ok := s.entries[key]; ok {
		for _, l := range e.leads {
			current[l.ID] = l
		}
	}

	merged := make([]domain.Lead, 0, len(loaded))
	seen := make(map[uuid.UUID]bool, len(loaded))
	for _, l := range loaded {
		seen[l.ID] = true
		if pw, ok := ts.overlay[l.ID]; ok {
			if filter.Matches(pw.lead) {
				merged = append(merged, pw.lead)
			}
			continue
		}
		if cur, ok := current[l.ID]; ok && cur.Version > l.Version {
			if filter.Matches(cur) {
				merged = append(merged, cur)
			}
			continue
		}
		merged = append(merged, l)
	}
	for id, pw := range ts.overlay {
		if !seen[id] && filter.Matches(pw.lead) {
			merged = append([]domain.Lead{pw.lead}, merged...)
		}
	}

	now := s.opts.Now()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{filter: filter, readAt: now}
		s.entries[key] = e
	}
	e.leads = merged
	e.loadedAt = now
	return merged
}

func (s *Store) applyOptimistic(tenantID, leadID uuid.UUID, patch domain.Patch) (uint64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenantLocked(tenantID)
	s.nextToken++
	token := s.nextToken
	ts.inFlight++
	ts.epoch++
	appliedEpoch := ts.epoch

	prevOverlay, hadOverlay := ts.overlay[leadID]
	base, found := s.findLocked(tenantID, leadID)
	previous := make(map[cacheKey][]domain.Lead)

	if found {
		optimistic := patch.Apply(base)
		optimistic.UpdatedAt = s.opts.Now()
		ts.overlay[leadID] = pendingWrite{lead: optimistic, token: token}
		for key, e := range s.entries {
			if key.tenantID != tenantID {
				continue
			}
			previous[key] = e.leads
			e.leads = replaceLead(e.leads, optimistic, e.filter)
		}
	}

	rollback := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		ts.inFlight--
		if !found {
			return
		}
		if cur, ok := ts.overlay[leadID]; ok && cur.token == token {
			if hadOverlay {
				ts.overlay[leadID] = prevOverlay
			} else {
				delete(ts.overlay, leadID)
			}
		}
		exact := ts.epoch == appliedEpoch
		for key, prev := range previous {
			e, ok := s.entries[key]
			if !ok {
				continue
			}
			if exact {
				e.leads = prev
				continue
			}
			// Other writes or loads landed meanwhile: revert only this lead.
			if old, ok := findLead(prev, leadID); ok {
				e.leads = replaceLead(e.leads, old, e.filter)
			} else {
				e.leads = removeLead(e.leads, leadID)
			}
		}
	}

	return token, rollback
}

func (s *Store) confirm(tenantID uuid.UUID, token uint64, saved domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenantLocked(tenantID)
	ts.inFlight--
	if cur, ok := ts.overlay[saved.ID]; ok {
		if cur.token != token {
			// A newer local write is still pending; it stays visible.
			return
		}
		delete(ts.overlay, saved.ID)
	}
	ts.epoch++
	for key, e := range s.entries {
		if key.tenantID != tenantID {
			continue
		}
		if existing, ok := findLead(e.leads, saved.ID); ok && existing.Version > saved.Version {
			continue
		}
		e.leads = replaceLead(e.leads, saved, e.filter)
	}
}

// reloadLead replaces the cached copies of one lead with the stored row.
// A local write still in flight keeps precedence.
func (s *Store) reloadLead(ctx context.Context, tenantID, leadID uuid.UUID) {
	fresh, err := s.repo.GetByID(context.WithoutCancel(ctx), tenantID, leadID)
	gone := errors.Is(err, repository.ErrNotFound)
	if err != nil && !gone {
		s.log.Warn("lead store reload failed",
			slog.String("tenant_id", tenantID.String()),
			slog.String("lead_id", leadID.String()),
			slog.String("error", err.Error()))
		s.scheduleReconcile(tenantID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenantLocked(tenantID)
	if _, pending := ts.overlay[leadID]; pending {
		return
	}
	ts.epoch++
	for key, e := range s.entries {
		if key.tenantID != tenantID {
			continue
		}
		if gone {
			e.leads = removeLead(e.leads, leadID)
			continue
		}
		if existing, ok := findLead(e.leads, leadID); ok && existing.Version >= fresh.Version {
			continue
		}
		e.leads = replaceLead(e.leads, fresh, e.filter)
	}
}

func (s *Store) scheduleReconcile(tenantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	ts := s.tenantLocked(tenantID)
	if ts.reconcile != nil {
		ts.reconcile.Reset(s.opts.ReconcileDelay)
		return
	}
	ts.reconcile = time.AfterFunc(s.opts.ReconcileDelay, func() { s.reconcile(tenantID) })
}

// reconcile reloads every snapshot of the tenant, postponing itself while writes are in flight.
func (s *Store) reconcile(tenantID uuid.UUID) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ts := s.tenantLocked(tenantID)
	if ts.inFlight > 0 && ts.reconcile != nil {
		ts.reconcile.Reset(s.opts.ReconcileDelay)
		s.mu.Unlock()
		return
	}
	ts.reconcile = nil
	var keys []cacheKey
	var filters []domain.Filter
	for key, e := range s.entries {
		if key.tenantID == tenantID {
			keys = append(keys, key)
			filters = append(filters, e.filter)
		}
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.metrics.RecordReconcile()
	for i, key := range keys {
		if _, err := s.load(s.ctx, key, filters[i], "reconcile", true); err != nil && s.ctx.Err() == nil {
			s.log.Warn("lead store reconcile failed",
				slog.String("tenant_id", tenantID.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Store) tenantLocked(tenantID uuid.UUID) *tenantState {
	ts, ok := s.tenants[tenantID]
	if !ok {
		ts = &tenantState{overlay: make(map[uuid.UUID]pendingWrite)}
		s.tenants[tenantID] = ts
	}
	return ts
}

func (s *Store) findLocked(tenantID, leadID uuid.UUID) (domain.Lead, bool) {
	if ts, ok := s.tenants[tenantID]; ok {
		if pw, ok := ts.overlay[leadID]; ok {
			return pw.lead, true
		}
	}
	var best domain.Lead
	found := false
	for key, e := range s.entries {
		if key.tenantID != tenantID {
			continue
		}
		if l, ok := findLead(e.leads, leadID); ok && (!found || l.Version > best.Version) {
			best, found = l, true
		}
	}
	return best, found
}

func findLead(leads []domain.Lead, id uuid.UUID) (domain.Lead, bool) {
	for _, l := range leads {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Lead{}, false
}

// replaceLead returns a new slice with lead substituted, dropped or prepended according to filter.
func replaceLead(leads []domain.Lead, lead domain.Lead, filter domain.Filter) []domain.Lead {
	matches := filter.Matches(lead)
	out := make([]domain.Lead, 0, len(leads)+1)
	replaced := false
	for _, l := range leads {
		if l.ID == lead.ID {
			replaced = true
			if matches {
				out = append(out, lead)
			}
			continue
		}
		out = append(out, l)
	}
	if matches && !replaced {
		out = append([]domain.Lead{lead}, out...)
	}
	return out
}

func removeLead(leads []domain.Lead, id uuid.UUID) []domain.Lead {
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}

// dedupeByRemoteJID keeps the most recently updated lead per chat address.
func dedupeByRemoteJID(leads []domain.Lead) []domain.Lead {
	index := make(map[string]int, len(leads))
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		if l.RemoteJID == "" {
			out = append(out, l)
			continue
		}
		if i, ok := index[l.RemoteJID]; ok {
			if l.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = l
			}
			continue
		}
		index[l.RemoteJID] = len(out)
		out = append(out, l)
	}
	return out
}

func cloneLeads(leads []domain.Lead) []domain.Lead {
	out := make([]domain.Lead, len(leads))
	for i, l := range leads {
		out[i] = l.Clone()
	}
	return out
}
