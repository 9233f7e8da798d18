// Package schema provides the dashboard and widget data model shared by
// the local cache, the sync engine, and the remote client.
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dashboard is a collection of visual widgets edited by the UI.
// The structure is flat and JSON-friendly with last-write-wins semantics:
// UpdatedAt is the sole conflict-resolution signal, Version is a monotonic
// counter bumped on every content change and used as a tie-break when two
// copies carry the same wall-clock timestamp.
type Dashboard struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Widgets     []Widget `json:"widgets"`

	IsPublished bool `json:"isPublished"`
	IsTemplate  bool `json:"isTemplate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Version int64 `json:"version,omitempty"`
}

// New creates an empty dashboard with a fresh id and timestamps.
func New(name, description string) *Dashboard {
	now := time.Now().UTC()
	return &Dashboard{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Widgets:     []Widget{},
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

// Validate checks that the dashboard has valid field values.
// Widget errors are prefixed with the widget's index for UI display.
func (d *Dashboard) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	if d.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	for i := range d.Widgets {
		if err := d.Widgets[i].Validate(); err != nil {
			return fmt.Errorf("widget %d: %w", i+1, err)
		}
	}
	return nil
}

// Touch refreshes UpdatedAt and bumps the version counter.
// Call this whenever dashboard content changes.
func (d *Dashboard) Touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}

// Clone returns a deep copy of the dashboard. Widget slices and config
// maps are copied so mutations on the clone never alias the original.
func (d *Dashboard) Clone() *Dashboard {
	c := *d
	c.Widgets = CloneWidgets(d.Widgets)
	return &c
}

// CloneFromTemplate creates a new dashboard from a template. The clone
// gets a fresh dashboard id, fresh widget ids, its own timestamps, and is
// neither published nor a template.
func CloneFromTemplate(tpl *Dashboard, name, description string) *Dashboard {
	d := New(name, description)
	d.Widgets = CloneWidgets(tpl.Widgets)
	for i := range d.Widgets {
		d.Widgets[i].ID = uuid.NewString()
	}
	return d
}

// NewerThan reports whether d should win a last-write-wins comparison
// against other. Strictly greater UpdatedAt wins; on equal timestamps the
// higher version counter wins.
func (d *Dashboard) NewerThan(other *Dashboard) bool {
	if d.UpdatedAt.After(other.UpdatedAt) {
		return true
	}
	if d.UpdatedAt.Equal(other.UpdatedAt) {
		return d.Version > other.Version
	}
	return false
}

// CloneDashboards deep-copies a dashboard collection.
func CloneDashboards(in []Dashboard) []Dashboard {
	if in == nil {
		return nil
	}
	out := make([]Dashboard, len(in))
	for i := range in {
		out[i] = *in[i].Clone()
	}
	return out
}
