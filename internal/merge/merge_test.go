package merge

import (
	"testing"
	"time"

	"github.com/vivek100/dashwizard/internal/schema"
)

func dash(id, name string, updatedAt time.Time, version int64) schema.Dashboard {
	return schema.Dashboard{
		ID:        id,
		Name:      name,
		Widgets:   []schema.Widget{},
		CreatedAt: updatedAt.Add(-time.Hour),
		UpdatedAt: updatedAt,
		Version:   version,
	}
}

func find(t *testing.T, ds []schema.Dashboard, id string) *schema.Dashboard {
	t.Helper()
	for i := range ds {
		if ds[i].ID == id {
			return &ds[i]
		}
	}
	t.Fatalf("dashboard %s missing from merge result", id)
	return nil
}

func TestRemoteOnlyTaken(t *testing.T) {
	now := time.Now().UTC()
	remote := []schema.Dashboard{dash("r1", "Remote", now, 1)}

	merged := Dashboards(remote, nil)

	if len(merged) != 1 {
		t.Fatalf("expected 1 dashboard, got %d", len(merged))
	}
	if merged[0].Name != "Remote" {
		t.Errorf("expected remote copy, got %q", merged[0].Name)
	}
}

func TestNewerRemoteWins(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{dash("d1", "Local", now, 1)}
	remote := []schema.Dashboard{dash("d1", "Remote", now.Add(time.Minute), 1)}

	merged := Dashboards(remote, local)

	if got := find(t, merged, "d1").Name; got != "Remote" {
		t.Errorf("newer remote should win, got %q", got)
	}
}

func TestNewerLocalWins(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{dash("d1", "Local", now.Add(time.Minute), 1)}
	remote := []schema.Dashboard{dash("d1", "Remote", now, 1)}

	merged := Dashboards(remote, local)

	if got := find(t, merged, "d1").Name; got != "Local" {
		t.Errorf("newer local should win, got %q", got)
	}
}

func TestTieFavorsLocal(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{dash("d1", "Local", now, 1)}
	remote := []schema.Dashboard{dash("d1", "Remote", now, 1)}

	merged := Dashboards(remote, local)

	if got := find(t, merged, "d1").Name; got != "Local" {
		t.Errorf("equal timestamps should keep local, got %q", got)
	}
}

func TestVersionBreaksTies(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{dash("d1", "Local", now, 2)}
	remote := []schema.Dashboard{dash("d1", "Remote", now, 5)}

	merged := Dashboards(remote, local)

	if got := find(t, merged, "d1").Name; got != "Remote" {
		t.Errorf("higher remote version on equal timestamps should win, got %q", got)
	}
}

func TestLocalOnlySurvives(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{
		dash("d1", "Synced", now, 1),
		dash("d2", "Draft", now, 1),
	}
	remote := []schema.Dashboard{dash("d1", "Synced", now.Add(time.Second), 1)}

	merged := Dashboards(remote, local)

	if len(merged) != 2 {
		t.Fatalf("expected 2 dashboards, got %d", len(merged))
	}
	if got := find(t, merged, "d2").Name; got != "Draft" {
		t.Errorf("local-only dashboard changed: %q", got)
	}
}

func TestMergeNeverAliasesInputs(t *testing.T) {
	now := time.Now().UTC()
	local := []schema.Dashboard{dash("d1", "Local", now.Add(time.Minute), 1)}
	local[0].Widgets = []schema.Widget{{
		ID: "w1", Type: schema.WidgetText, Title: "Note",
		Config: map[string]any{"content": "hello"},
	}}
	remote := []schema.Dashboard{dash("d1", "Remote", now, 1)}

	merged := Dashboards(remote, local)
	merged[0].Widgets[0].Config["content"] = "changed"

	if local[0].Widgets[0].Config["content"] != "hello" {
		t.Error("merge result aliases local input")
	}
}

func TestMergeOrdering(t *testing.T) {
	now := time.Now().UTC()
	remote := []schema.Dashboard{
		dash("a", "A", now, 1),
		dash("b", "B", now, 1),
	}
	local := []schema.Dashboard{
		dash("b", "B-local", now.Add(time.Second), 1),
		dash("c", "C", now, 1),
	}

	merged := Dashboards(remote, local)

	want := []string{"a", "b", "c"}
	if len(merged) != len(want) {
		t.Fatalf("expected %d dashboards, got %d", len(want), len(merged))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, merged[i].ID)
		}
	}
}
