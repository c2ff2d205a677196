package loginflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Manager keeps login flows in memory, keyed by an opaque ID carried in a
// browser cookie. Flows idle for longer than the TTL are removed.
// It is safe for concurrent use.
type Manager struct {
	mu            sync.RWMutex
	flows         map[string]*Flow
	ttl           time.Duration
	cooldown      time.Duration
	clock         Clock
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewManager creates a manager and starts its cleanup goroutine.
// A nil clock uses wall-clock time.
func NewManager(ttl, cooldown time.Duration, clock Clock) *Manager {
	if clock == nil {
		clock = RealClock()
	}

	m := &Manager{
		flows:         make(map[string]*Flow),
		ttl:           ttl,
		cooldown:      cooldown,
		clock:         clock,
		cleanupTicker: time.NewTicker(1 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Stop stops the cleanup goroutine and cancels every pending timer.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.stopCleanup)

		m.mu.Lock()
		defer m.mu.Unlock()
		for id, f := range m.flows {
			f.stop()
			delete(m.flows, id)
		}
	})
}

// Create starts a new flow with a random 64-hex-character ID.
func (m *Manager) Create() (*Flow, error) {
	id, err := generateFlowID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate flow ID: %w", err)
	}

	f := newFlow(id, m.cooldown, m.clock)

	m.mu.Lock()
	m.flows[id] = f
	m.mu.Unlock()

	return f, nil
}

// Get returns a live flow and marks it as recently used.
func (m *Manager) Get(id string) (*Flow, error) {
	m.mu.RLock()
	f, ok := m.flows[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("login flow not found")
	}

	now := m.clock.Now()
	if now.Sub(f.idleSince()) > m.ttl {
		return nil, fmt.Errorf("login flow expired")
	}

	f.touch(now)
	return f, nil
}

// Delete removes a flow and cancels its timer.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	f, ok := m.flows[id]
	delete(m.flows, id)
	m.mu.Unlock()

	if ok {
		f.stop()
	}
}

// Count returns the number of tracked flows.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// generateFlowID returns 32 random bytes as hex.
func generateFlowID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
