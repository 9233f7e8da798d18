package sync

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
	"github.com/vivek100/dashwizard/internal/remote"
	"github.com/vivek100/dashwizard/internal/schema"
)

// Status is the process-wide sync state derived from manager activity.
// It is observable, never persisted.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// FullSyncResult carries the complete remote snapshot from a full-sync
// pull, for the dashboard store to reconcile.
type FullSyncResult struct {
	Dashboards  []schema.Dashboard
	Templates   []schema.Dashboard
	CompletedAt time.Time
}

// Config holds configuration for the sync manager.
type Config struct {
	// DrainInterval is how often the worker checks the queue.
	DrainInterval time.Duration

	// FullSyncInterval is how often a periodic full pull runs.
	// Zero disables periodic pulls; ForceSync still works.
	FullSyncInterval time.Duration

	// ProbeInterval is the minimum spacing between connectivity probes
	// while offline.
	ProbeInterval time.Duration

	// MaxAttempts bounds retries per operation. After exhaustion the
	// operation stays queued and status becomes error.
	MaxAttempts int

	// RetryBaseDelay is the first retry delay; it doubles per attempt
	// up to a two minute ceiling.
	RetryBaseDelay time.Duration

	// Logger for manager activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval:    500 * time.Millisecond,
		FullSyncInterval: 5 * time.Minute,
		ProbeInterval:    15 * time.Second,
		MaxAttempts:      5,
		RetryBaseDelay:   time.Second,
		Logger:           log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

const maxRetryDelay = 2 * time.Minute

// Manager owns the durable operation queue and drains it in the
// background. Construct with NewManager, then Start; Stop tears down the
// worker goroutines.
type Manager struct {
	db      *cache.DB
	client  remote.Client
	session remote.SessionProvider
	scope   string
	config  *Config

	mu           gosync.Mutex
	status       Status
	lastSync     time.Time
	lastProbe    time.Time
	statusSubs   map[int]func(Status)
	queueSubs    map[int]func(int)
	fullSyncSubs map[int]func(FullSyncResult)
	nextSubID    int

	// drainMu serializes drain passes: the worker loop and ForceSync
	// both call drain, and two interleaved passes could apply the same
	// operation twice or land same-target operations out of order.
	drainMu gosync.Mutex

	kick    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      gosync.WaitGroup
	started bool
}

// NewManager creates a sync manager for one scope (user id; empty means
// the anonymous scope). The cache database must already be open.
func NewManager(db *cache.DB, client remote.Client, session remote.SessionProvider, scope string, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		db:           db,
		client:       client,
		session:      session,
		scope:        scope,
		config:       config,
		status:       StatusIdle,
		statusSubs:   make(map[int]func(Status)),
		queueSubs:    make(map[int]func(int)),
		fullSyncSubs: make(map[int]func(FullSyncResult)),
		kick:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}

	if t, err := db.LastSyncedAt(scope); err == nil {
		m.lastSync = t
	}

	return m
}

// Start launches the drain and full-sync worker goroutines.
// Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.drainLoop()

	if m.config.FullSyncInterval > 0 {
		m.wg.Add(1)
		go m.fullSyncLoop()
	}
}

// Stop shuts down the worker goroutines and waits for them to finish.
// Pending operations stay durably queued for the next process.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Enqueue durably appends an operation to the queue and nudges the
// worker. The remote attempt happens in the background; this call never
// performs network I/O.
func (m *Manager) Enqueue(kind cache.OpKind, targetID string, payload json.RawMessage) error {
	if _, err := m.db.EnqueueOp(m.scope, kind, targetID, payload); err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", kind, targetID, err)
	}
	m.notifyQueueLen()
	m.Kick()
	return nil
}

// Kick nudges the worker to drain without waiting for the next tick.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Status returns the current sync status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastSyncTime returns when the last full sync completed, or the zero
// time if none has.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// QueueLength returns the number of pending operations.
func (m *Manager) QueueLength() int {
	n, err := m.db.CountOps(m.scope)
	if err != nil {
		m.config.Logger.Printf("Warning: failed to count pending operations: %v", err)
		return 0
	}
	return n
}

// ClearQueue discards every pending operation without attempting it.
// This accepts data loss of unsynced local changes and exists as an
// explicit recovery lever; it returns how many operations were dropped.
func (m *Manager) ClearQueue() (int, error) {
	n, err := m.db.ClearOps(m.scope)
	if err != nil {
		return 0, err
	}
	m.config.Logger.Printf("Cleared %d pending operations", n)
	m.notifyQueueLen()
	m.setStatus(StatusIdle)
	return n, nil
}

// ForceSync drains the queue and performs a full pull immediately.
func (m *Manager) ForceSync(ctx context.Context) error {
	m.drain(ctx)
	return m.FullSync(ctx)
}

// FullSync fetches the complete remote dashboard and template
// collections and emits a full-sync-complete event carrying them. The
// pull is independent of pending local operations; reconciliation
// happens in the subscriber (the dashboard store).
func (m *Manager) FullSync(ctx context.Context) error {
	if m.session != nil && !m.session.HasSession() {
		m.setStatus(StatusOffline)
		return remote.ErrNoSession
	}

	dashboards, err := m.client.FetchUserDashboards(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnavailable) || errors.Is(err, remote.ErrNoSession) {
			m.setStatus(StatusOffline)
		}
		return fmt.Errorf("failed to fetch dashboards: %w", err)
	}

	templates, err := m.client.FetchTemplates(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnavailable) || errors.Is(err, remote.ErrNoSession) {
			m.setStatus(StatusOffline)
		}
		return fmt.Errorf("failed to fetch templates: %w", err)
	}

	now := time.Now().UTC()
	if err := m.db.SetLastSyncedAt(m.scope, now); err != nil {
		m.config.Logger.Printf("Warning: failed to persist last sync time: %v", err)
	}

	m.mu.Lock()
	m.lastSync = now
	subs := make([]func(FullSyncResult), 0, len(m.fullSyncSubs))
	for _, fn := range m.fullSyncSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	result := FullSyncResult{
		Dashboards:  dashboards,
		Templates:   templates,
		CompletedAt: now,
	}
	for _, fn := range subs {
		fn(result)
	}

	m.config.Logger.Printf("Full sync complete: %d dashboards, %d templates", len(dashboards), len(templates))
	return nil
}

// drainLoop is the worker goroutine that drains the queue.
func (m *Manager) drainLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.drain(m.ctx)
		case <-m.kick:
			m.drain(m.ctx)
		}
	}
}

// fullSyncLoop performs periodic full pulls.
func (m *Manager) fullSyncLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.FullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.FullSync(m.ctx); err != nil {
				m.config.Logger.Printf("Periodic full sync failed: %v", err)
			}
		}
	}
}

// drain attempts every due pending operation once, in FIFO order.
// Only one pass runs at a time.
//
// Operations sharing a target id are never reordered: when one fails or
// is not yet due, later operations for the same id are skipped in this
// pass. Operations for other ids continue to be attempted.
func (m *Manager) drain(ctx context.Context) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	if m.session != nil && !m.session.HasSession() {
		m.setStatus(StatusOffline)
		return
	}

	// While offline, probe before touching the queue so a dead link
	// doesn't burn an attempt on every queued operation.
	if m.Status() == StatusOffline {
		if !m.probeDue() {
			return
		}
		if err := m.client.Ping(ctx); err != nil {
			return
		}
		m.config.Logger.Printf("Connectivity restored, draining queue")
	}

	ops, err := m.db.PendingOps(m.scope)
	if err != nil {
		m.config.Logger.Printf("Warning: failed to read pending operations: %v", err)
		return
	}
	if len(ops) == 0 {
		m.setStatus(StatusIdle)
		return
	}

	now := time.Now()
	blocked := make(map[string]bool)
	exhausted := false
	offline := false
	attempted := false

	for i := range ops {
		op := &ops[i]
		if blocked[op.TargetID] {
			continue
		}
		if !op.NextRetry.IsZero() && now.Before(op.NextRetry) {
			blocked[op.TargetID] = true
			if op.Attempts >= m.config.MaxAttempts {
				exhausted = true
			}
			continue
		}

		// Flip to syncing only once something is actually attempted;
		// a pass where everything is backed off must not flap the
		// status for subscribers.
		if !attempted {
			attempted = true
			m.setStatus(StatusSyncing)
		}

		err := m.apply(ctx, op)
		if err == nil {
			if err := m.db.AckOp(op.Seq); err != nil {
				m.config.Logger.Printf("Warning: failed to ack operation %d: %v", op.Seq, err)
			}
			m.notifyQueueLen()
			continue
		}

		if errors.Is(err, remote.ErrUnavailable) || errors.Is(err, remote.ErrNoSession) {
			// Connectivity loss pauses the queue; it is not an
			// operation failure, so no attempt is counted.
			offline = true
			break
		}

		attempts := op.Attempts + 1
		delay := m.retryDelay(attempts)
		if deferErr := m.db.DeferOp(op.Seq, attempts, now.Add(delay)); deferErr != nil {
			m.config.Logger.Printf("Warning: failed to defer operation %d: %v", op.Seq, deferErr)
		}
		blocked[op.TargetID] = true
		if attempts >= m.config.MaxAttempts {
			exhausted = true
			m.config.Logger.Printf("Operation %d (%s %s) failed after %d attempts, leaving queued: %v",
				op.Seq, op.Kind, op.TargetID, attempts, err)
		} else {
			m.config.Logger.Printf("Operation %d (%s %s) failed (attempt %d/%d), retrying in %s: %v",
				op.Seq, op.Kind, op.TargetID, attempts, m.config.MaxAttempts, delay.Round(time.Millisecond), err)
		}
	}

	switch {
	case offline:
		m.setStatus(StatusOffline)
	case exhausted:
		m.setStatus(StatusError)
	case m.QueueLength() == 0:
		m.setStatus(StatusIdle)
	}
}

// apply executes one operation against the remote service.
func (m *Manager) apply(ctx context.Context, op *cache.Op) error {
	switch op.Kind {
	case cache.OpCreate, cache.OpUpdate:
		var d schema.Dashboard
		if err := json.Unmarshal(op.Payload, &d); err != nil {
			return fmt.Errorf("undecodable payload: %w", err)
		}
		if op.Kind == cache.OpCreate {
			return m.client.CreateDashboard(ctx, d)
		}
		return m.client.UpdateDashboard(ctx, d)
	case cache.OpDelete:
		return m.client.DeleteDashboard(ctx, op.TargetID)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (m *Manager) retryDelay(attempts int) time.Duration {
	delay := m.config.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (m *Manager) probeDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.lastProbe) < m.config.ProbeInterval {
		return false
	}
	m.lastProbe = time.Now()
	return true
}
