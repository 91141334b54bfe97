// Package sessions tracks live voice sessions so the server can drain
// them on shutdown and enforce per-principal concurrency caps.
package sessions

import (
	"context"
	"errors"
	"sync"
)

// ErrPrincipalLimit is returned by Register when the principal already
// has the maximum number of concurrent sessions.
var ErrPrincipalLimit = errors.New("too many concurrent sessions for principal")

// Handle is the slice of a live session the manager needs: a way to
// cancel it and a way to send it a warning frame.
type Handle struct {
	Cancel func()
	Warn   func(code, message string) error
}

// Manager owns the set of live sessions. The zero value is usable; use
// NewManager to set a per-principal limit.
type Manager struct {
	mu           sync.Mutex
	limit        int
	sessions     map[string]*entry
	perPrincipal map[string]int
	wg           sync.WaitGroup
}

type entry struct {
	principal string
	handle    Handle
	once      sync.Once
}

// NewManager returns a Manager that allows each principal at most
// perPrincipalLimit concurrent sessions. A limit of zero or less
// disables the cap.
func NewManager(perPrincipalLimit int) *Manager {
	return &Manager{
		limit:        perPrincipalLimit,
		sessions:     make(map[string]*entry),
		perPrincipal: make(map[string]int),
	}
}

// Register adds a session under sessionID and counts it against
// principal's cap. An empty principal is never capped. The returned
// closure removes the session; it is safe to call more than once.
// Registering an ID that is already present releases the old entry.
func (m *Manager) Register(sessionID, principal string, h Handle) (unregister func(), err error) {
	if m == nil {
		return func() {}, nil
	}

	e := &entry{principal: principal, handle: h}

	m.mu.Lock()
	if m.sessions == nil {
		m.sessions = make(map[string]*entry)
	}
	if m.perPrincipal == nil {
		m.perPrincipal = make(map[string]int)
	}
	if m.limit > 0 && principal != "" && m.perPrincipal[principal] >= m.limit {
		m.mu.Unlock()
		return nil, ErrPrincipalLimit
	}
	old := m.sessions[sessionID]
	m.sessions[sessionID] = e
	if principal != "" {
		m.perPrincipal[principal]++
	}
	m.wg.Add(1)
	m.mu.Unlock()

	if old != nil {
		m.release(sessionID, old)
	}

	return func() { m.release(sessionID, e) }, nil
}

func (m *Manager) release(sessionID string, e *entry) {
	if m == nil || e == nil {
		return
	}
	e.once.Do(func() {
		m.mu.Lock()
		if m.sessions != nil && m.sessions[sessionID] == e {
			delete(m.sessions, sessionID)
		}
		if e.principal != "" && m.perPrincipal != nil {
			if n := m.perPrincipal[e.principal]; n <= 1 {
				delete(m.perPrincipal, e.principal)
			} else {
				m.perPrincipal[e.principal] = n - 1
			}
		}
		m.mu.Unlock()
		m.wg.Done()
	})
}

// Count reports the number of registered sessions.
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CountFor reports the number of registered sessions for one principal.
func (m *Manager) CountFor(principal string) int {
	if m == nil || principal == "" {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perPrincipal[principal]
}

// WarnAll sends a warning to every session that can receive one and
// reports how many were attempted. Send errors are ignored; a session
// that cannot take the frame is already on its way out.
func (m *Manager) WarnAll(code, message string) (sent int) {
	if m == nil {
		return 0
	}

	var warns []func(code, message string) error
	m.mu.Lock()
	for _, e := range m.sessions {
		if e == nil || e.handle.Warn == nil {
			continue
		}
		warns = append(warns, e.handle.Warn)
	}
	m.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

// CancelAll cancels every registered session and reports how many.
func (m *Manager) CancelAll() (canceled int) {
	if m == nil {
		return 0
	}

	var cancels []func()
	m.mu.Lock()
	for _, e := range m.sessions {
		if e == nil || e.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, e.handle.Cancel)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx
// is done, and reports whether the set drained fully.
func (m *Manager) Wait(ctx context.Context) bool {
	if m == nil {
		return true
	}
	if ctx == nil {
		m.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
