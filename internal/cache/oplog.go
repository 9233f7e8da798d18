package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// OpKind is the kind of remote mutation an operation carries.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is a single pending sync operation.
//
// Operations are durable: they survive process restarts and are only
// removed once the remote service has acknowledged them (or the caller
// explicitly clears the queue). Seq orders the queue; operations for the
// same target id must be applied remotely in Seq order.
type Op struct {
	Seq        int64           `json:"seq"`
	Kind       OpKind          `json:"kind"`
	TargetID   string          `json:"targetId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
	NextRetry  time.Time       `json:"nextRetryAt,omitempty"`
}

// EnqueueOp appends an operation to the scope's queue and returns its
// assigned sequence number.
func (db *DB) EnqueueOp(scope string, kind OpKind, targetID string, payload json.RawMessage) (int64, error) {
	return db.EnqueueOpContext(context.Background(), scope, kind, targetID, payload)
}

// EnqueueOpContext appends an operation with context support.
func (db *DB) EnqueueOpContext(ctx context.Context, scope string, kind OpKind, targetID string, payload json.RawMessage) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO oplog (scope, kind, target_id, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)",
		scope, string(kind), targetID, nullableString(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue operation: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read operation seq: %w", err)
	}
	return seq, nil
}

// PendingOps returns the scope's queued operations in FIFO order.
func (db *DB) PendingOps(scope string) ([]Op, error) {
	return db.PendingOpsContext(context.Background(), scope)
}

// PendingOpsContext lists pending operations with context support.
func (db *DB) PendingOpsContext(ctx context.Context, scope string) ([]Op, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT seq, kind, target_id, payload, enqueued_at, attempts, next_retry_at FROM oplog WHERE scope = ? ORDER BY seq",
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []Op
	for rows.Next() {
		var (
			op        Op
			kind      string
			payload   sql.NullString
			enqueued  string
			nextRetry sql.NullString
		)
		if err := rows.Scan(&op.Seq, &kind, &op.TargetID, &payload, &enqueued, &op.Attempts, &nextRetry); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Kind = OpKind(kind)
		if payload.Valid {
			op.Payload = json.RawMessage(payload.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, enqueued); err == nil {
			op.EnqueuedAt = t
		}
		if nextRetry.Valid {
			if t, err := time.Parse(time.RFC3339Nano, nextRetry.String); err == nil {
				op.NextRetry = t
			}
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return ops, nil
}

// AckOp removes an acknowledged operation from the queue.
// Removing an already-removed operation is a no-op.
func (db *DB) AckOp(seq int64) error {
	if _, err := db.conn.Exec("DELETE FROM oplog WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("failed to ack operation %d: %w", seq, err)
	}
	return nil
}

// DeferOp records a failed attempt and schedules the next retry.
func (db *DB) DeferOp(seq int64, attempts int, nextRetry time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE oplog SET attempts = ?, next_retry_at = ? WHERE seq = ?",
		attempts, nextRetry.UTC().Format(time.RFC3339Nano), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to defer operation %d: %w", seq, err)
	}
	return nil
}

// CountOps returns the number of queued operations for a scope.
func (db *DB) CountOps(scope string) (int, error) {
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM oplog WHERE scope = ?", scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

// ClearOps discards every queued operation for a scope without attempting
// them. This is the explicit data-loss escape hatch; the sync manager
// exposes it as ClearQueue.
func (db *DB) ClearOps(scope string) (int, error) {
	res, err := db.conn.Exec("DELETE FROM oplog WHERE scope = ?", scope)
	if err != nil {
		return 0, fmt.Errorf("failed to clear operations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
