package app

import (
	"sync"

	"github.com/bft-labs/bulkship/pkg/log"
)

// State is the run state of a Runner.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// stateMachine guards Runner state transitions.
type stateMachine struct {
	mu     sync.RWMutex
	state  State
	logger log.Logger
}

func newStateMachine(logger log.Logger) *stateMachine {
	return &stateMachine{state: StateStopped, logger: logger}
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// transition moves from one of the allowed states to next.
func (m *stateMachine) transition(next State, reason string, from ...State) error {
	m.mu.Lock()
	prev := m.state
	allowed := false
	for _, s := range from {
		if s == prev {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		if prev == StateStopped {
			return ErrNotRunning
		}
		return ErrAlreadyRunning
	}
	m.state = next
	m.mu.Unlock()

	m.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}
