// Package merge implements last-write-wins reconciliation of a remote
// dashboard snapshot against local state.
//
// The merge is a pure function over two collections: no I/O, no clocks,
// no mutation of its inputs. It intentionally never deletes data —
// deletions only happen through explicit operations flowing through the
// sync queue, so a dashboard missing from the remote snapshot is kept.
package merge

import "github.com/vivek100/dashwizard/internal/schema"

// Dashboards combines a remote snapshot with local state.
//
// For each remote dashboard: if no local counterpart exists, the remote
// copy is taken as-is (remote is authoritative for never-seen ids). If a
// local counterpart exists, whichever copy has the strictly greater
// UpdatedAt wins; ties favor local, since local state is presumed to
// include not-yet-synced edits (a higher local version counter also keeps
// local on equal timestamps).
//
// Every local dashboard absent from the remote snapshot is kept: it is
// either purely local and not yet created remotely, or the remote deleted
// it and the local delete will arrive through the queue.
//
// The result preserves remote ordering, with local-only dashboards
// appended in their local order. Inputs are deep-copied, never aliased.
func Dashboards(remote, local []schema.Dashboard) []schema.Dashboard {
	localByID := make(map[string]*schema.Dashboard, len(local))
	for i := range local {
		localByID[local[i].ID] = &local[i]
	}

	merged := make([]schema.Dashboard, 0, len(remote)+len(local))
	taken := make(map[string]bool, len(remote))

	for i := range remote {
		r := &remote[i]
		taken[r.ID] = true

		l, ok := localByID[r.ID]
		if !ok {
			merged = append(merged, *r.Clone())
			continue
		}
		if r.NewerThan(l) {
			merged = append(merged, *r.Clone())
		} else {
			merged = append(merged, *l.Clone())
		}
	}

	for i := range local {
		if !taken[local[i].ID] {
			merged = append(merged, *local[i].Clone())
		}
	}

	return merged
}
