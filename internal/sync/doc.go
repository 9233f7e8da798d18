// Package sync provides the background synchronization manager for the
// local-first dashboard engine.
//
// The manager owns the durable operation queue. Mutating callers (the
// dashboard store) enqueue operations and return immediately; a worker
// goroutine drains the queue against the remote service in the
// background, with bounded retry and backoff. Operations for the same
// dashboard id are always applied in enqueue order; a failing operation
// never blocks operations for other dashboards.
//
// # Status state machine
//
//	idle    -> syncing   queue non-empty, worker processing
//	syncing -> idle      queue drained
//	syncing -> error     an operation exhausted its retries (it stays
//	                     queued; ForceSync and ClearQueue are the
//	                     recovery levers)
//	any     -> offline   connectivity lost or no usable session; the
//	                     queue is paused, not failed
//	offline -> syncing   a successful probe triggers automatic draining
//
// # Observability
//
// Consumers subscribe to status changes, queue-length changes, and
// full-sync completions. Each subscription returns a disposer; after
// calling it the callback is never invoked again, so a torn-down UI
// leaves no dangling listeners:
//
//	unsub := mgr.SubscribeStatus(func(s sync.Status) {
//	    log.Printf("sync status: %s", s)
//	})
//	defer unsub()
//
// Full-sync completions carry the complete remote snapshot; the dashboard
// store reconciles it against local state with the merge package, so a
// pull never overwrites a dashboard whose local copy is newer.
package sync
