package loginflow

import "log/slog"

// cleanupLoop periodically removes idle flows until Stop is called.
func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup removes flows idle for longer than the TTL. Flows with a send or
// verification in progress are kept until the next pass.
func (m *Manager) cleanup() {
	now := m.clock.Now()

	m.mu.Lock()
	var expired []*Flow
	for id, f := range m.flows {
		if now.Sub(f.idleSince()) <= m.ttl || f.busy() {
			continue
		}
		delete(m.flows, id)
		expired = append(expired, f)
	}
	m.mu.Unlock()

	for _, f := range expired {
		f.stop()
	}

	if len(expired) > 0 {
		slog.Info("cleaned up idle login flows", "count", len(expired))
	}
}
