package sync

// Subscription management for status, queue-length, and full-sync
// events. Every Subscribe* returns a disposer; callbacks are invoked
// synchronously from whichever goroutine triggered the change, so they
// must not block.

// SubscribeStatus registers a callback for status transitions. The
// callback fires only when the status actually changes.
func (m *Manager) SubscribeStatus(fn func(Status)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.statusSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.statusSubs, id)
		m.mu.Unlock()
	}
}

// SubscribeQueueLen registers a callback for queue-length changes.
func (m *Manager) SubscribeQueueLen(fn func(int)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.queueSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.queueSubs, id)
		m.mu.Unlock()
	}
}

// SubscribeFullSync registers a callback for full-sync completions.
// The callback receives the complete remote snapshot.
func (m *Manager) SubscribeFullSync(fn func(FullSyncResult)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.fullSyncSubs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.fullSyncSubs, id)
		m.mu.Unlock()
	}
}

// setStatus transitions the status and notifies subscribers when it
// actually changed.
func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	subs := make([]func(Status), 0, len(m.statusSubs))
	for _, fn := range m.statusSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// notifyQueueLen pushes the current queue length to subscribers.
func (m *Manager) notifyQueueLen() {
	n := m.QueueLength()

	m.mu.Lock()
	subs := make([]func(int), 0, len(m.queueSubs))
	for _, fn := range m.queueSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}
