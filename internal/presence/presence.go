// Package presence counts customers currently browsing the remote order page.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"bingopos/backend/internal/domain"
)

const DefaultTimeout = 30 * time.Second

var ErrUnknownState = errors.New("unknown presence state")

type Tracker interface {
	Touch(ctx context.Context, sessionID string, state string) error
	Remove(ctx context.Context, sessionID string) error
	// Snapshot drops sessions not seen within the timeout, then counts the rest.
	Snapshot(ctx context.Context) (domain.PresenceSnapshot, error)
}

func ValidState(state string) bool {
	switch state {
	case domain.PresenceBrowsing, domain.PresencePaying, domain.PresenceCompleted:
		return true
	}
	return false
}

type session struct {
	state    string
	lastSeen time.Time
}

type MemoryTracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	now      func() time.Time
	sessions map[string]session
}

func NewMemoryTracker(timeout time.Duration) *MemoryTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MemoryTracker{
		timeout:  timeout,
		now:      time.Now,
		sessions: make(map[string]session),
	}
}

func (t *MemoryTracker) Touch(_ context.Context, sessionID string, state string) error {
	if !ValidState(state) {
		return ErrUnknownState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = session{state: state, lastSeen: t.now()}
	return nil
}

func (t *MemoryTracker) Remove(_ context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
	return nil
}

func (t *MemoryTracker) Snapshot(_ context.Context) (domain.PresenceSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.timeout)
	var snap domain.PresenceSnapshot
	for id, s := range t.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(t.sessions, id)
			continue
		}
		count(&snap, s.state)
	}
	return snap, nil
}

func count(snap *domain.PresenceSnapshot, state string) {
	switch state {
	case domain.PresenceBrowsing:
		snap.Browsing++
	case domain.PresencePaying:
		snap.Paying++
	case domain.PresenceCompleted:
		snap.Completed++
	default:
		return
	}
	snap.Total++
}
