package store

import (
	"time"

	"github.com/vivek100/dashwizard/internal/schema"
	"github.com/vivek100/dashwizard/internal/sync"
)

// Read accessors for the UI. All return copies; the in-memory collection
// is mutated only through the store's named mutation methods.

// Dashboards returns the current dashboard collection.
func (s *Store) Dashboards() []schema.Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schema.CloneDashboards(s.dashboards)
}

// Templates returns the current template collection.
func (s *Store) Templates() []schema.Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schema.CloneDashboards(s.templates)
}

// Dashboard returns one dashboard by id.
func (s *Store) Dashboard(id string) (schema.Dashboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d := s.findLocked(id); d != nil {
		return *d.Clone(), true
	}
	return schema.Dashboard{}, false
}

// CurrentDashboard returns the current selection, if any.
func (s *Store) CurrentDashboard() (schema.Dashboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return schema.Dashboard{}, false
	}
	if d := s.findLocked(s.currentID); d != nil {
		return *d.Clone(), true
	}
	return schema.Dashboard{}, false
}

// SyncStatus returns the sync manager's current status.
func (s *Store) SyncStatus() sync.Status {
	return s.mgr.Status()
}

// PendingOperations returns how many operations await sync, for the
// UI's "N changes pending" indicator.
func (s *Store) PendingOperations() int {
	return s.mgr.QueueLength()
}

// LastSyncTime returns when the last full sync completed.
func (s *Store) LastSyncTime() time.Time {
	return s.mgr.LastSyncTime()
}

// IsInitialized reports whether Initialize has completed its local-load
// phase.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
