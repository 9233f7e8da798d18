// Package store provides the dashboard store: the single in-memory
// source of truth the UI reads and mutates.
//
// Every mutating call is synchronous and optimistic: it updates memory,
// durably persists the full snapshot through the local cache, and
// enqueues the corresponding sync operation — all before returning. A
// reader never observes a mutation that is not already in the local
// cache, and no mutation ever waits on the network.
//
// Local-state errors (ErrNotFound) return synchronously for immediate UI
// feedback. Persistence failures are logged and swallowed — the mutation
// is kept in memory and the user is never blocked. Network failures are
// invisible here entirely; they surface only through the sync manager's
// status subscriptions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/vivek100/dashwizard/internal/cache"
	"github.com/vivek100/dashwizard/internal/merge"
	"github.com/vivek100/dashwizard/internal/schema"
	"github.com/vivek100/dashwizard/internal/sync"
)

// ErrNotFound indicates a dashboard, template, or widget id that does
// not resolve locally. It is returned synchronously and never queued.
var ErrNotFound = errors.New("not found")

// Update is a partial dashboard update. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
	Widgets     *[]schema.Widget
	IsPublished *bool
	IsTemplate  *bool
}

// WidgetUpdate is a partial widget update. Nil fields are left
// unchanged; a non-nil Config replaces the widget's config wholesale.
type WidgetUpdate struct {
	Title    *string
	Position *schema.Position
	Size     *schema.Size
	Config   map[string]any
}

// Store is the stateful dashboard store. Construct one per process with
// New, call Initialize once, and Close on teardown. All methods are safe
// for concurrent use.
type Store struct {
	db     *cache.DB
	mgr    *sync.Manager
	scope  string
	logger *log.Logger

	mu          gosync.RWMutex
	dashboards  []schema.Dashboard
	templates   []schema.Dashboard
	currentID   string
	initialized bool

	unsubscribe func()
}

// New creates a store over an open cache database and a sync manager
// for the same scope. If logger is nil a default stderr logger is used.
func New(db *cache.DB, mgr *sync.Manager, scope string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		db:     db,
		mgr:    mgr,
		scope:  scope,
		logger: logger,
	}
}

// Initialize runs the idempotent startup sequence.
//
// The synchronous phase loads the local cache snapshot into memory, so
// the UI can render immediately — it completes before Initialize
// returns. Remote priming then continues in the background: the sync
// manager starts, and the initial full-sync pull lands through the merge
// whenever the remote answers.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}

	snap, err := s.db.LoadSnapshot(s.scope)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to load local cache: %w", err)
	}
	s.dashboards = snap.Dashboards
	s.templates = snap.Templates
	s.initialized = true
	s.mu.Unlock()

	s.unsubscribe = s.mgr.SubscribeFullSync(s.applyRemoteSnapshot)
	s.mgr.Start()

	// Prime from remote without blocking the caller. Failure here is
	// routine (offline start): the periodic pull will catch up.
	go func() {
		if err := s.mgr.FullSync(ctx); err != nil {
			s.logger.Printf("Initial remote prime failed: %v", err)
		}
	}()

	return nil
}

// Close detaches the store from the sync manager and stops it.
// The cache database is left open for the owner to close.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mgr.Stop()
}

// CreateDashboard creates a dashboard with a fresh id and zero widgets,
// returning the fully-formed result immediately.
func (s *Store) CreateDashboard(name, description string) (schema.Dashboard, error) {
	if name == "" {
		return schema.Dashboard{}, fmt.Errorf("name is required")
	}

	d := schema.New(name, description)

	s.mu.Lock()
	s.dashboards = append(s.dashboards, *d.Clone())
	s.persistLocked()
	s.enqueueLocked(cache.OpCreate, d.ID, d)
	s.mu.Unlock()

	return *d, nil
}

// UpdateDashboard merges partial updates into the matching dashboard and
// refreshes its timestamp. The queued operation carries the complete
// merged dashboard, not a diff.
func (s *Store) UpdateDashboard(id string, upd Update) (schema.Dashboard, error) {
	s.mu.Lock()
	d := s.findLocked(id)
	if d == nil {
		s.mu.Unlock()
		return schema.Dashboard{}, fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}

	if upd.Name != nil {
		d.Name = *upd.Name
	}
	if upd.Description != nil {
		d.Description = *upd.Description
	}
	if upd.Widgets != nil {
		d.Widgets = schema.CloneWidgets(*upd.Widgets)
	}
	if upd.IsPublished != nil {
		d.IsPublished = *upd.IsPublished
	}
	if upd.IsTemplate != nil {
		d.IsTemplate = *upd.IsTemplate
	}
	d.Touch()

	result := *d.Clone()
	s.persistLocked()
	s.enqueueLocked(cache.OpUpdate, id, &result)
	s.mu.Unlock()

	return result, nil
}

// DeleteDashboard removes a dashboard from memory and queues the remote
// delete. If it is the current selection, the selection is cleared.
func (s *Store) DeleteDashboard(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.dashboards {
		if s.dashboards[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}
	s.dashboards = append(s.dashboards[:idx], s.dashboards[idx+1:]...)
	if s.currentID == id {
		s.currentID = ""
	}
	s.persistLocked()
	s.enqueueLocked(cache.OpDelete, id, nil)
	s.mu.Unlock()

	return nil
}

// PublishDashboard marks a dashboard published and makes it available as
// a template.
func (s *Store) PublishDashboard(id string) (schema.Dashboard, error) {
	yes := true
	return s.UpdateDashboard(id, Update{IsPublished: &yes, IsTemplate: &yes})
}

// UnpublishDashboard reverts a published dashboard to a private draft.
func (s *Store) UnpublishDashboard(id string) (schema.Dashboard, error) {
	no := false
	return s.UpdateDashboard(id, Update{IsPublished: &no, IsTemplate: &no})
}

// CreateFromTemplate clones a template into a new dashboard. The clone
// and every cloned widget get fresh ids.
func (s *Store) CreateFromTemplate(templateID, name, description string) (schema.Dashboard, error) {
	s.mu.Lock()
	var tpl *schema.Dashboard
	for i := range s.templates {
		if s.templates[i].ID == templateID {
			tpl = &s.templates[i]
			break
		}
	}
	if tpl == nil {
		// Published local dashboards act as templates too.
		for i := range s.dashboards {
			if s.dashboards[i].ID == templateID && s.dashboards[i].IsTemplate {
				tpl = &s.dashboards[i]
				break
			}
		}
	}
	if tpl == nil {
		s.mu.Unlock()
		return schema.Dashboard{}, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}

	d := schema.CloneFromTemplate(tpl, name, description)
	s.dashboards = append(s.dashboards, *d.Clone())
	s.persistLocked()
	s.enqueueLocked(cache.OpCreate, d.ID, d)
	s.mu.Unlock()

	return *d, nil
}

// SetCurrentDashboard selects the dashboard the editing surface is
// focused on. An empty id clears the selection.
func (s *Store) SetCurrentDashboard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.findLocked(id) == nil {
		return fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}
	s.currentID = id
	return nil
}

// ForceSync delegates to the sync manager: drain the queue and pull a
// fresh remote snapshot now.
func (s *Store) ForceSync(ctx context.Context) error {
	return s.mgr.ForceSync(ctx)
}

// ClearSyncQueue discards all pending operations without attempting
// them. Unsynced local changes will never reach the remote; callers must
// present this as an explicit data-loss action.
func (s *Store) ClearSyncQueue() (int, error) {
	return s.mgr.ClearQueue()
}

// applyRemoteSnapshot reconciles a full-sync snapshot into local state.
// Merge, in-memory swap, and persistence happen under one lock so no
// reader ever observes a half-merged state.
func (s *Store) applyRemoteSnapshot(res sync.FullSyncResult) {
	s.mu.Lock()
	s.dashboards = merge.Dashboards(res.Dashboards, s.dashboards)
	s.templates = merge.Dashboards(res.Templates, s.templates)
	s.persistLocked()
	s.mu.Unlock()

	s.logger.Printf("Reconciled remote snapshot from %s", res.CompletedAt.Format(time.RFC3339))
}

// persistLocked writes the full current snapshot to the local cache.
// Write failures are logged, never surfaced: the in-memory mutation
// stands and the UI must not be blocked by a full or broken cache.
func (s *Store) persistLocked() {
	if err := s.db.SaveSnapshot(s.scope, s.dashboards, s.templates); err != nil {
		s.logger.Printf("Warning: failed to persist snapshot: %v", err)
	}
}

// enqueueLocked queues a sync operation. Callers hold s.mu: enqueueing
// under the same lock as the mutation keeps the queue in the order the
// mutations were applied, so the remote converges to the latest local
// state. Queue-persistence failures are logged and swallowed for the
// same reason as snapshot failures.
func (s *Store) enqueueLocked(kind cache.OpKind, id string, payload *schema.Dashboard) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Printf("Warning: failed to marshal %s payload for %s: %v", kind, id, err)
			return
		}
		raw = data
	}
	if err := s.mgr.Enqueue(kind, id, raw); err != nil {
		s.logger.Printf("Warning: %v", err)
	}
}

// findLocked returns a pointer into the dashboards slice, or nil.
// Callers hold s.mu.
func (s *Store) findLocked(id string) *schema.Dashboard {
	for i := range s.dashboards {
		if s.dashboards[i].ID == id {
			return &s.dashboards[i]
		}
	}
	return nil
}
