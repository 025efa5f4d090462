package ftpclient

import (
	"context"
	"time"
)

// StartHeartbeat launches the liveness loop. Every heartbeat interval it
// sends NOOP under the command lock. When NOOP fails and auto-reconnect is
// enabled it tries to reconnect, silently on success. Otherwise the session
// is torn down, onLost is called once and the loop ends.
//
// Starting a heartbeat replaces any running one. Disconnect and Connect
// stop it.
func (m *Manager) StartHeartbeat(onLost func()) {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	m.stopHeartbeatLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.hbStop, m.hbDone = cancel, done
	go m.heartbeat(ctx, done, onLost)
}

func (m *Manager) stopHeartbeat() {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	m.stopHeartbeatLocked()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop == nil {
		return
	}
	m.hbStop()
	<-m.hbDone
	m.hbStop, m.hbDone = nil, nil
}

func (m *Manager) heartbeat(ctx context.Context, done chan struct{}, onLost func()) {
	lost := false
	// done is closed before onLost runs so the callback may start, stop or
	// replace heartbeats itself.
	defer func() {
		close(done)
		if lost && onLost != nil {
			onLost()
		}
	}()

	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := m.ping(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		m.logger.Warn("heartbeat failed", "error", err)

		if m.autoReconnect && m.recover(ctx) {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if !m.drop(ctx) {
			return
		}
		m.logger.Info("connection lost", "error", ErrConnectionLost)
		lost = true
		return
	}
}

func (m *Manager) ping(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if m.conn == nil {
		return ErrNotConnected
	}
	return m.conn.Noop()
}

// recover tries up to reconnectAttempts reconnects, pausing reconnectDelay
// between them.
func (m *Manager) recover(ctx context.Context) bool {
	for attempt := 1; attempt <= m.reconnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(m.reconnectDelay):
			}
		}
		err := m.Reconnect(ctx)
		if err == nil {
			m.logger.Info("reconnected", "attempt", attempt)
			return true
		}
		m.logger.Warn("reconnect failed", "attempt", attempt, "of", m.reconnectAttempts, "error", err)
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// drop tears the session down after an unrecoverable heartbeat failure.
// It reports false when the heartbeat was stopped first.
func (m *Manager) drop(ctx context.Context) bool {
	if err := m.acquire(ctx); err != nil {
		return false
	}
	defer m.release()
	m.teardownLocked(false)
	return true
}
