package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// NewWidgetID returns a fresh widget id.
func NewWidgetID() string {
	return uuid.NewString()
}

// WidgetType identifies how a widget renders its data.
type WidgetType string

const (
	WidgetTable  WidgetType = "table"
	WidgetChart  WidgetType = "chart"
	WidgetMetric WidgetType = "metric"
	WidgetText   WidgetType = "text"
)

// ValidWidgetType reports whether t is one of the known widget types.
func ValidWidgetType(t WidgetType) bool {
	switch t {
	case WidgetTable, WidgetChart, WidgetMetric, WidgetText:
		return true
	}
	return false
}

// Position is a widget's top-left corner on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a widget's rendered dimensions.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Widget is a single visual element owned by exactly one dashboard.
// Config is opaque to the sync engine; chart/query settings live there
// and are interpreted by the rendering layer.
type Widget struct {
	ID       string         `json:"id"`
	Type     WidgetType     `json:"type"`
	Title    string         `json:"title"`
	Position Position       `json:"position"`
	Size     Size           `json:"size"`
	Config   map[string]any `json:"config,omitempty"`
}

// Validate checks that the widget has valid field values.
func (w *Widget) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ValidWidgetType(w.Type) {
		return fmt.Errorf("invalid widget type %q", w.Type)
	}
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if w.Size.Width < 0 || w.Size.Height < 0 {
		return fmt.Errorf("size must be non-negative")
	}
	return nil
}

// Clone returns a deep copy of the widget including its config map.
func (w *Widget) Clone() Widget {
	c := *w
	c.Config = CloneConfig(w.Config)
	return c
}

// CloneConfig deep-copies a widget config, recursing into nested maps
// and slices so no value in the copy aliases the original. Config values
// are JSON-shaped (maps, slices, scalars); other types are copied by
// assignment.
func CloneConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneConfigValue(v)
	}
	return out
}

func cloneConfigValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneConfigValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneConfigValue(e)
		}
		return s
	default:
		return v
	}
}

// CloneWidgets deep-copies a widget slice. A nil input yields an empty
// slice so dashboards always marshal widgets as [] rather than null.
func CloneWidgets(in []Widget) []Widget {
	out := make([]Widget, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// DefaultSize returns the canonical dimensions for a widget type.
// Unknown types get a generic medium box.
func DefaultSize(t WidgetType) Size {
	switch t {
	case WidgetMetric:
		return Size{Width: 280, Height: 160}
	case WidgetChart:
		return Size{Width: 500, Height: 300}
	case WidgetTable:
		return Size{Width: 580, Height: 300}
	case WidgetText:
		return Size{Width: 400, Height: 200}
	}
	return Size{Width: 400, Height: 250}
}

// AutoPosition picks a free canvas position for a new widget of the given
// type, below any existing widget it would otherwise overlap. Metrics
// cluster at the top, charts in the middle band, tables at the bottom.
func AutoPosition(existing []Widget, t WidgetType) Position {
	preferredY := map[WidgetType]float64{
		WidgetMetric: 0,
		WidgetChart:  180,
		WidgetText:   400,
		WidgetTable:  500,
	}
	preferredX := map[WidgetType][]float64{
		WidgetMetric: {0, 300, 600},
		WidgetChart:  {0, 300},
		WidgetText:   {0, 300},
		WidgetTable:  {0},
	}

	y, ok := preferredY[t]
	if !ok {
		return Position{X: 0, Y: 600}
	}
	size := DefaultSize(t)

	for _, x := range preferredX[t] {
		if !overlapsAny(Position{X: x, Y: y}, size, existing) {
			return Position{X: x, Y: y}
		}
	}

	// Preferred slots taken: drop below the lowest widget in that row.
	maxY := y
	for i := range existing {
		wy := existing[i].Position.Y
		if wy >= y-50 && wy <= y+50 {
			if bottom := wy + existing[i].Size.Height; bottom > maxY {
				maxY = bottom
			}
		}
	}
	return Position{X: preferredX[t][0], Y: maxY + 30}
}

const widgetMargin = 20

func overlapsAny(pos Position, size Size, existing []Widget) bool {
	for i := range existing {
		o := &existing[i]
		if pos.X < o.Position.X+o.Size.Width+widgetMargin &&
			pos.X+size.Width+widgetMargin > o.Position.X &&
			pos.Y < o.Position.Y+o.Size.Height+widgetMargin &&
			pos.Y+size.Height+widgetMargin > o.Position.Y {
			return true
		}
	}
	return false
}
