package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	gosync "sync"
	"testing"
	"time"

	"github.com/vivek100/dashwizard/internal/cache"
	"github.com/vivek100/dashwizard/internal/remote"
	"github.com/vivek100/dashwizard/internal/schema"
)

// fakeRemote is an in-memory remote.Client with switchable failure
// modes. All fields are guarded by mu so tests can flip them while the
// drain worker runs.
type fakeRemote struct {
	mu         gosync.Mutex
	dashboards map[string]schema.Dashboard
	templates  []schema.Dashboard
	err        error // returned by every mutation and Ping when set
	applied    []string
	updateHook func(name string) // runs before an update is applied
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{dashboards: make(map[string]schema.Dashboard)}
}

func (f *fakeRemote) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) get(id string) (schema.Dashboard, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dashboards[id]
	return d, ok
}

func (f *fakeRemote) appliedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.applied))
	copy(out, f.applied)
	return out
}

func (f *fakeRemote) FetchUserDashboards(ctx context.Context) ([]schema.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]schema.Dashboard, 0, len(f.dashboards))
	for _, d := range f.dashboards {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRemote) FetchTemplates(ctx context.Context) ([]schema.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.CloneDashboards(f.templates), nil
}

func (f *fakeRemote) CreateDashboard(ctx context.Context, d schema.Dashboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dashboards[d.ID] = d
	f.applied = append(f.applied, "create:"+d.ID)
	return nil
}

func (f *fakeRemote) setUpdateHook(fn func(name string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateHook = fn
}

func (f *fakeRemote) UpdateDashboard(ctx context.Context, d schema.Dashboard) error {
	f.mu.Lock()
	hook := f.updateHook
	f.mu.Unlock()
	if hook != nil {
		hook(d.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dashboards[d.ID] = d
	f.applied = append(f.applied, "update:"+d.ID)
	return nil
}

func (f *fakeRemote) DeleteDashboard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.dashboards, id)
	f.applied = append(f.applied, "delete:"+id)
	return nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.DrainInterval = time.Hour // tests drive drain directly
	cfg.FullSyncInterval = 0
	cfg.ProbeInterval = 0
	cfg.MaxAttempts = 3
	cfg.RetryBaseDelay = time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func setupManager(t *testing.T) (*Manager, *fakeRemote, *cache.DB) {
	t.Helper()

	db, err := cache.Open(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := newFakeRemote()
	m := NewManager(db, client, remote.StaticSession("token"), "", testConfig())
	t.Cleanup(m.Stop)
	return m, client, db
}

func mustEnqueue(t *testing.T, m *Manager, kind cache.OpKind, d *schema.Dashboard) {
	t.Helper()
	payload, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := m.Enqueue(kind, d.ID, payload); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
}

func TestEnqueueNeverTouchesNetwork(t *testing.T) {
	m, client, _ := setupManager(t)
	client.setError(errors.New("remote must not be called"))

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	if n := m.QueueLength(); n != 1 {
		t.Errorf("expected 1 queued operation, got %d", n)
	}
	if len(client.appliedOps()) != 0 {
		t.Errorf("enqueue performed network I/O: %v", client.appliedOps())
	}
}

func TestDrainAppliesInOrder(t *testing.T) {
	m, client, _ := setupManager(t)

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	d.Name = "Revenue"
	d.Touch()
	mustEnqueue(t, m, cache.OpUpdate, d)

	d.Name = "Revenue Q3"
	d.Touch()
	mustEnqueue(t, m, cache.OpUpdate, d)

	m.drain(context.Background())

	got, ok := client.get(d.ID)
	if !ok {
		t.Fatal("dashboard never reached the remote")
	}
	if got.Name != "Revenue Q3" {
		t.Errorf("expected last write to win remotely, got %q", got.Name)
	}
	want := []string{"create:" + d.ID, "update:" + d.ID, "update:" + d.ID}
	applied := client.appliedOps()
	if len(applied) != len(want) {
		t.Fatalf("expected %d applied ops, got %v", len(want), applied)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Errorf("op %d: expected %s, got %s", i, want[i], applied[i])
		}
	}
	if n := m.QueueLength(); n != 0 {
		t.Errorf("expected drained queue, got %d", n)
	}
	if s := m.Status(); s != StatusIdle {
		t.Errorf("expected idle after drain, got %s", s)
	}
}

func TestFailedOpBlocksOnlyItsTarget(t *testing.T) {
	m, client, _ := setupManager(t)

	bad := schema.New("Bad", "")
	good := schema.New("Good", "")

	// A payload that won't decode poisons only its own target.
	if err := m.Enqueue(cache.OpUpdate, bad.ID, json.RawMessage(`{broken`)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	mustEnqueue(t, m, cache.OpUpdate, bad)
	mustEnqueue(t, m, cache.OpCreate, good)

	m.drain(context.Background())

	if _, ok := client.get(good.ID); !ok {
		t.Error("unrelated dashboard blocked behind a failing operation")
	}
	if _, ok := client.get(bad.ID); ok {
		t.Error("later op for failing target was applied out of order")
	}
	if n := m.QueueLength(); n != 2 {
		t.Errorf("expected 2 ops still queued, got %d", n)
	}
}

func TestRetryExhaustionLeavesOpQueued(t *testing.T) {
	m, client, _ := setupManager(t)

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	client.setError(errors.New("internal server error"))

	for i := 0; i < testConfig().MaxAttempts; i++ {
		m.drain(context.Background())
		time.Sleep(10 * time.Millisecond) // let the backoff expire
	}

	if s := m.Status(); s != StatusError {
		t.Errorf("expected error status after exhaustion, got %s", s)
	}
	if n := m.QueueLength(); n != 1 {
		t.Errorf("exhausted operation must stay queued, got %d", n)
	}

	// A later successful pass still applies it.
	client.setError(nil)
	time.Sleep(10 * time.Millisecond)
	m.drain(context.Background())
	if _, ok := client.get(d.ID); !ok {
		t.Error("exhausted operation was not retried after recovery")
	}
}

func TestExhaustedRetriesNotAttemptedBeforeBackoff(t *testing.T) {
	m, client, _ := setupManager(t)

	cfg := testConfig()
	cfg.RetryBaseDelay = time.Hour
	m.config = cfg

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	client.setError(errors.New("boom"))
	m.drain(context.Background())
	client.setError(nil)
	m.drain(context.Background())

	if _, ok := client.get(d.ID); ok {
		t.Error("operation retried before its backoff expired")
	}
	if n := m.QueueLength(); n != 1 {
		t.Errorf("expected operation still queued, got %d", n)
	}
}

func TestUnavailableRemoteGoesOffline(t *testing.T) {
	m, client, _ := setupManager(t)

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	client.setError(fmt.Errorf("%w: connection refused", remote.ErrUnavailable))
	m.drain(context.Background())

	if s := m.Status(); s != StatusOffline {
		t.Errorf("expected offline status, got %s", s)
	}

	// Connectivity loss is not an operation failure: no attempt counted.
	ops, err := m.db.PendingOps("")
	if err != nil {
		t.Fatalf("PendingOps failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Attempts != 0 {
		t.Errorf("offline pause must not consume attempts: %+v", ops)
	}

	// Once the probe succeeds the queue drains automatically.
	client.setError(nil)
	m.drain(context.Background())
	if _, ok := client.get(d.ID); !ok {
		t.Error("queue did not drain after connectivity returned")
	}
	if s := m.Status(); s != StatusIdle {
		t.Errorf("expected idle after recovery, got %s", s)
	}
}

func TestNoSessionPausesQueue(t *testing.T) {
	db, err := cache.Open(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := newFakeRemote()
	m := NewManager(db, client, remote.StaticSession(""), "", testConfig())
	t.Cleanup(m.Stop)

	mustEnqueue(t, m, cache.OpCreate, schema.New("Sales", ""))
	m.drain(context.Background())

	if s := m.Status(); s != StatusOffline {
		t.Errorf("expected offline without a session, got %s", s)
	}
	if len(client.appliedOps()) != 0 {
		t.Error("remote was called without a session")
	}
	if err := m.FullSync(context.Background()); !errors.Is(err, remote.ErrNoSession) {
		t.Errorf("expected ErrNoSession from full sync, got %v", err)
	}
}

func TestProbeSpacingWhileOffline(t *testing.T) {
	m, client, _ := setupManager(t)

	cfg := testConfig()
	cfg.ProbeInterval = time.Hour
	m.config = cfg

	mustEnqueue(t, m, cache.OpCreate, schema.New("Sales", ""))

	client.setError(fmt.Errorf("%w: down", remote.ErrUnavailable))
	m.drain(context.Background())
	if s := m.Status(); s != StatusOffline {
		t.Fatalf("expected offline, got %s", s)
	}

	// First offline drain probes and burns the window; the recovery is
	// not noticed until the next probe is due.
	m.drain(context.Background())
	client.setError(nil)
	m.drain(context.Background())
	if s := m.Status(); s != StatusOffline {
		t.Errorf("probe ran before its interval elapsed, status %s", s)
	}
}

func TestStatusSubscription(t *testing.T) {
	m, client, _ := setupManager(t)

	var mu gosync.Mutex
	var seen []Status
	unsub := m.SubscribeStatus(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	mustEnqueue(t, m, cache.OpCreate, schema.New("Sales", ""))
	m.drain(context.Background())

	mu.Lock()
	got := append([]Status(nil), seen...)
	mu.Unlock()
	if len(got) != 2 || got[0] != StatusSyncing || got[1] != StatusIdle {
		t.Errorf("expected syncing then idle, got %v", got)
	}

	// After disposal no further notifications arrive.
	unsub()
	client.setError(fmt.Errorf("%w: down", remote.ErrUnavailable))
	mustEnqueue(t, m, cache.OpCreate, schema.New("Other", ""))
	m.drain(context.Background())

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n != 2 {
		t.Errorf("disposed subscriber still notified, %d events", n)
	}
}

func TestQueueLenSubscription(t *testing.T) {
	m, _, _ := setupManager(t)

	var mu gosync.Mutex
	var lengths []int
	m.SubscribeQueueLen(func(n int) {
		mu.Lock()
		lengths = append(lengths, n)
		mu.Unlock()
	})

	mustEnqueue(t, m, cache.OpCreate, schema.New("A", ""))
	mustEnqueue(t, m, cache.OpCreate, schema.New("B", ""))
	m.drain(context.Background())

	mu.Lock()
	got := append([]int(nil), lengths...)
	mu.Unlock()

	if len(got) < 4 {
		t.Fatalf("expected enqueue and ack notifications, got %v", got)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("expected growth 1,2 on enqueue, got %v", got[:2])
	}
	if got[len(got)-1] != 0 {
		t.Errorf("expected final length 0, got %v", got)
	}
}

func TestFullSyncEmitsSnapshot(t *testing.T) {
	m, client, db := setupManager(t)

	remote1 := schema.New("Remote", "lives on the server")
	client.mu.Lock()
	client.dashboards[remote1.ID] = *remote1
	client.templates = []schema.Dashboard{*schema.New("Starter", "")}
	client.mu.Unlock()

	var mu gosync.Mutex
	var result FullSyncResult
	var fired bool
	m.SubscribeFullSync(func(r FullSyncResult) {
		mu.Lock()
		result = r
		fired = true
		mu.Unlock()
	})

	if err := m.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatal("full-sync subscriber never fired")
	}
	if len(result.Dashboards) != 1 || result.Dashboards[0].ID != remote1.ID {
		t.Errorf("unexpected dashboards in snapshot: %+v", result.Dashboards)
	}
	if len(result.Templates) != 1 {
		t.Errorf("expected 1 template, got %d", len(result.Templates))
	}
	if m.LastSyncTime().IsZero() {
		t.Error("last sync time not recorded")
	}

	// The sync time is durable: a fresh manager over the same cache
	// starts with it.
	m2 := NewManager(db, client, remote.StaticSession("token"), "", testConfig())
	t.Cleanup(m2.Stop)
	if m2.LastSyncTime().IsZero() {
		t.Error("last sync time not persisted across managers")
	}
}

func TestClearQueueDiscardsPending(t *testing.T) {
	m, client, _ := setupManager(t)

	client.setError(fmt.Errorf("%w: down", remote.ErrUnavailable))
	mustEnqueue(t, m, cache.OpCreate, schema.New("A", ""))
	mustEnqueue(t, m, cache.OpCreate, schema.New("B", ""))
	m.drain(context.Background())

	n, err := m.ClearQueue()
	if err != nil {
		t.Fatalf("ClearQueue failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	if m.QueueLength() != 0 {
		t.Error("queue not empty after clear")
	}
	if s := m.Status(); s != StatusIdle {
		t.Errorf("expected idle after clear, got %s", s)
	}

	// The dropped operations are gone for good.
	client.setError(nil)
	m.drain(context.Background())
	if len(client.appliedOps()) != 0 {
		t.Errorf("cleared operations were still applied: %v", client.appliedOps())
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m, _, _ := setupManager(t)

	m.Start()
	m.Start()
	mustEnqueue(t, m, cache.OpCreate, schema.New("Sales", ""))
	m.Stop()
	m.Stop()
}

func TestConcurrentDrainsKeepOrder(t *testing.T) {
	m, client, _ := setupManager(t)

	d := schema.New("Sales", "")
	d.Name = "A"
	mustEnqueue(t, m, cache.OpUpdate, d)
	d.Name = "B"
	d.Touch()
	mustEnqueue(t, m, cache.OpUpdate, d)

	// Stall the first pass mid-write for "B", then run a second pass
	// (the ForceSync path) concurrently. It must wait its turn; if the
	// passes interleave, a later drain can apply newer operations and
	// then the stalled older write lands last on the remote.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once gosync.Once
	client.setUpdateHook(func(name string) {
		if name == "B" {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	firstDone := make(chan struct{})
	go func() {
		m.drain(context.Background())
		close(firstDone)
	}()
	<-entered

	d.Name = "C"
	d.Touch()
	mustEnqueue(t, m, cache.OpUpdate, d)

	secondDone := make(chan struct{})
	go func() {
		m.drain(context.Background())
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second drain pass finished while the first was mid-operation")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	<-firstDone
	<-secondDone

	got, ok := client.get(d.ID)
	if !ok {
		t.Fatal("dashboard never reached the remote")
	}
	if got.Name != "C" {
		t.Errorf("remote ended with %q, want the last queued state C", got.Name)
	}
	if n := m.QueueLength(); n != 0 {
		t.Errorf("expected drained queue, got %d", n)
	}
}

func TestBackedOffOpsDoNotFlapStatus(t *testing.T) {
	m, client, _ := setupManager(t)

	cfg := testConfig()
	cfg.RetryBaseDelay = time.Hour
	cfg.MaxAttempts = 1
	m.config = cfg

	mustEnqueue(t, m, cache.OpCreate, schema.New("Sales", ""))
	client.setError(errors.New("boom"))
	m.drain(context.Background())
	if s := m.Status(); s != StatusError {
		t.Fatalf("expected error after exhaustion, got %s", s)
	}

	// Further passes find only the backed-off op; with nothing to
	// attempt the status must hold steady for subscribers.
	var mu gosync.Mutex
	var seen []Status
	m.SubscribeStatus(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		m.drain(context.Background())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 0 {
		t.Errorf("status changed %d times while nothing was attempted: %v", len(seen), seen)
	}
	if s := m.Status(); s != StatusError {
		t.Errorf("expected error to persist, got %s", s)
	}
}

func TestBackgroundWorkerDrains(t *testing.T) {
	m, client, _ := setupManager(t)
	m.config.DrainInterval = 10 * time.Millisecond
	m.Start()

	d := schema.New("Sales", "")
	mustEnqueue(t, m, cache.OpCreate, d)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := client.get(d.ID); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background worker never drained the queue")
}
