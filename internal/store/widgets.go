package store

import (
	"fmt"

	"github.com/vivek100/dashwizard/internal/cache"
	"github.com/vivek100/dashwizard/internal/schema"
)

// Widget mutations. Each one rebuilds the owning dashboard's widget
// slice by value (never in place), then behaves exactly like
// UpdateDashboard for persistence and enqueueing.

// AddWidget appends a widget to a dashboard. A missing widget id is
// generated, a zero size gets the type's default dimensions, and a zero
// position is auto-placed on the canvas.
func (s *Store) AddWidget(dashboardID string, w schema.Widget) (schema.Widget, error) {
	if w.ID == "" {
		w.ID = schema.NewWidgetID()
	}
	if !schema.ValidWidgetType(w.Type) {
		return schema.Widget{}, fmt.Errorf("invalid widget type %q", w.Type)
	}
	if w.Title == "" {
		return schema.Widget{}, fmt.Errorf("widget title is required")
	}

	s.mu.Lock()
	d := s.findLocked(dashboardID)
	if d == nil {
		s.mu.Unlock()
		return schema.Widget{}, fmt.Errorf("dashboard %s: %w", dashboardID, ErrNotFound)
	}

	if w.Size == (schema.Size{}) {
		w.Size = schema.DefaultSize(w.Type)
	}
	if w.Position == (schema.Position{}) {
		w.Position = schema.AutoPosition(d.Widgets, w.Type)
	}

	widgets := schema.CloneWidgets(d.Widgets)
	widgets = append(widgets, w.Clone())
	d.Widgets = widgets
	d.Touch()

	result := *d.Clone()
	added := w.Clone()
	s.persistLocked()
	s.enqueueLocked(cache.OpUpdate, dashboardID, &result)
	s.mu.Unlock()

	return added, nil
}

// UpdateWidget merges partial updates into one widget of a dashboard.
func (s *Store) UpdateWidget(dashboardID, widgetID string, upd WidgetUpdate) (schema.Widget, error) {
	s.mu.Lock()
	d := s.findLocked(dashboardID)
	if d == nil {
		s.mu.Unlock()
		return schema.Widget{}, fmt.Errorf("dashboard %s: %w", dashboardID, ErrNotFound)
	}

	widgets := schema.CloneWidgets(d.Widgets)
	idx := -1
	for i := range widgets {
		if widgets[i].ID == widgetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return schema.Widget{}, fmt.Errorf("widget %s: %w", widgetID, ErrNotFound)
	}

	w := &widgets[idx]
	if upd.Title != nil {
		w.Title = *upd.Title
	}
	if upd.Position != nil {
		w.Position = *upd.Position
	}
	if upd.Size != nil {
		w.Size = *upd.Size
	}
	if upd.Config != nil {
		w.Config = schema.CloneConfig(upd.Config)
	}

	d.Widgets = widgets
	d.Touch()

	result := *d.Clone()
	updated := w.Clone()
	s.persistLocked()
	s.enqueueLocked(cache.OpUpdate, dashboardID, &result)
	s.mu.Unlock()

	return updated, nil
}

// RemoveWidget deletes one widget from a dashboard.
func (s *Store) RemoveWidget(dashboardID, widgetID string) error {
	s.mu.Lock()
	d := s.findLocked(dashboardID)
	if d == nil {
		s.mu.Unlock()
		return fmt.Errorf("dashboard %s: %w", dashboardID, ErrNotFound)
	}

	widgets := schema.CloneWidgets(d.Widgets)
	idx := -1
	for i := range widgets {
		if widgets[i].ID == widgetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("widget %s: %w", widgetID, ErrNotFound)
	}

	d.Widgets = append(widgets[:idx], widgets[idx+1:]...)
	d.Touch()

	result := *d.Clone()
	s.persistLocked()
	s.enqueueLocked(cache.OpUpdate, dashboardID, &result)
	s.mu.Unlock()

	return nil
}
