package controlplane

import (
	"context"
	"sort"
	"sync"
	"time"

	"glosskit/protocol"
)

// SessionTracker records the extension sessions this agent is serving and
// their last reported playback state. It is safe for concurrent use.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*protocol.SessionInfo
	draining bool
	idle     []chan struct{}

	// OnChange is called without the lock held after a session starts or
	// ends. Playback state changes do not trigger it.
	OnChange func()
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*protocol.SessionInfo)}
}

func (t *SessionTracker) Start(sessionID, clientAddr string) {
	t.mu.Lock()
	t.sessions[sessionID] = &protocol.SessionInfo{
		SessionID:  sessionID,
		ClientAddr: clientAddr,
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
		Status:     "active",
	}
	t.mu.Unlock()
	t.changed()
}

// SetState stores the playback state of a running session. Unknown
// sessions are ignored.
func (t *SessionTracker) SetState(sessionID, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.sessions[sessionID]; ok {
		info.State = state
	}
}

func (t *SessionTracker) Finish(sessionID string) {
	t.mu.Lock()
	_, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	if len(t.sessions) == 0 {
		for _, ch := range t.idle {
			close(ch)
		}
		t.idle = nil
	}
	t.mu.Unlock()
	if ok {
		t.changed()
	}
}

func (t *SessionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Drain marks the agent as shutting down. It only changes the reported
// status; sessions keep running until they end.
func (t *SessionTracker) Drain() {
	t.mu.Lock()
	t.draining = true
	t.mu.Unlock()
	t.changed()
}

// WaitIdle blocks until no session is running or ctx ends.
func (t *SessionTracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	if len(t.sessions) == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.idle = append(t.idle, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the agent status and a copy of every session, oldest
// first.
func (t *SessionTracker) Snapshot() (protocol.AgentStatus, []protocol.SessionInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions := make([]protocol.SessionInfo, 0, len(t.sessions))
	for _, info := range t.sessions {
		sessions = append(sessions, *info)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt != sessions[j].StartedAt {
			return sessions[i].StartedAt < sessions[j].StartedAt
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
	status := protocol.AgentIdle
	switch {
	case t.draining:
		status = protocol.AgentDraining
	case len(sessions) > 0:
		status = protocol.AgentServing
	}
	return status, sessions
}

func (t *SessionTracker) changed() {
	if t.OnChange != nil {
		t.OnChange()
	}
}
