package offline

import (
	"sync"
	"sync/atomic"
)

// Connectivity reports whether the device currently believes it can reach the server.
// The engine trusts it and never probes on its own.
type Connectivity interface {
	Online() bool
}

// AlwaysOnline is a Connectivity for environments without a network signal.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

// Switch is a settable Connectivity. Listeners registered with OnChange run
// synchronously on every state change.
type Switch struct {
	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
}

// NewSwitch creates a Switch in the given initial state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online.Store(online)
	return s
}

func (s *Switch) Online() bool { return s.online.Load() }

// Set updates the state and notifies listeners if it changed.
func (s *Switch) Set(online bool) {
	if s.online.Swap(online) == online {
		return
	}
	s.mu.Lock()
	listeners := append([]func(bool){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// OnChange registers fn to be called after each state change.
func (s *Switch) OnChange(fn func(online bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
