// Package history implements the append-only per-session turn log the
// policy escalator consults: bounded retention, windowed reads, and a
// per-session lock so concurrent requests on the same session serialize.
package history

import (
	"context"
	"sync"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// DefaultMaxTurns bounds per-session retention unless a Store is
// constructed with an explicit limit.
const DefaultMaxTurns = 200

// Store is the interface the policy evaluator and orchestrator consume.
// Implementations may be in-memory (Memory, below) or persistent; the core
// does not specify storage.
type Store interface {
	// GetRecent returns up to limit turns for sessionID, oldest first.
	GetRecent(ctx context.Context, sessionID string, limit int) ([]model.HistoryTurn, error)
	// Append adds turn to sessionID's log, evicting the oldest turn if the
	// session is already at MaxTurns.
	Append(ctx context.Context, sessionID string, turn model.HistoryTurn) error
}

// Memory is an in-memory Store bounded by MaxTurns per session, with a
// per-session lock so append/getRecent serialize against each other.
type Memory struct {
	maxTurns int

	mu       sync.Mutex
	sessions map[string]*sessionLog
}

type sessionLog struct {
	mu    sync.Mutex
	turns []model.HistoryTurn
}

// NewMemory constructs an in-memory history store retaining at most
// maxTurns turns per session. maxTurns == 0 is a valid, deliberate
// "retain nothing" configuration (GetRecent always returns empty); negative
// values fall back to DefaultMaxTurns.
func NewMemory(maxTurns int) *Memory {
	if maxTurns < 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{maxTurns: maxTurns, sessions: make(map[string]*sessionLog)}
}

func (m *Memory) sessionFor(sessionID string) *sessionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.sessions[sessionID]
	if !ok {
		log = &sessionLog{}
		m.sessions[sessionID] = log
	}
	return log
}

func (m *Memory) GetRecent(_ context.Context, sessionID string, limit int) ([]model.HistoryTurn, error) {
	if sessionID == "" || limit <= 0 {
		return nil, nil
	}
	log := m.sessionFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	n := len(log.turns)
	if n > limit {
		n = limit
	}
	out := make([]model.HistoryTurn, n)
	copy(out, log.turns[len(log.turns)-n:])
	return out, nil
}

func (m *Memory) Append(_ context.Context, sessionID string, turn model.HistoryTurn) error {
	if sessionID == "" {
		return nil
	}
	log := m.sessionFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	if m.maxTurns == 0 {
		return nil
	}
	log.turns = append(log.turns, turn)
	if len(log.turns) > m.maxTurns {
		log.turns = log.turns[len(log.turns)-m.maxTurns:]
	}
	return nil
}
