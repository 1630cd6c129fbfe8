package connection

import (
	"sync"
	"time"
)

type StateValue int

const (
	StateValueUnknown StateValue = iota
	StateValueConnected
	StateValueDisconnected
)

type State struct {
	Value         StateValue `json:"value"`
	LastSuccessAt int64      `json:"lastSuccessAt,omitempty"`
	LastFailureAt int64      `json:"lastFailureAt,omitempty"`
}

type StateChangeCb func(State)

// Status tracks the connection state of a single provider.
type Status struct {
	mu            sync.Mutex
	state         State
	stateChangeCb StateChangeCb
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) SetStateChangeCb(stateChangeCb StateChangeCb) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateChangeCb = stateChangeCb
}

func (s *Status) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Status) SetState(state State) {
	s.mu.Lock()
	notify := s.state.Value != state.Value && s.stateChangeCb != nil
	cb := s.stateChangeCb
	s.state = state
	s.mu.Unlock()

	if notify {
		cb(state)
	}
}

func (s *Status) SetIsConnected(connected bool) {
	now := time.Now().Unix()

	state := s.GetState()
	if connected {
		state.Value = StateValueConnected
		state.LastSuccessAt = now
	} else {
		state.Value = StateValueDisconnected
		state.LastFailureAt = now
	}
	s.SetState(state)
}

func (s *Status) IsConnected() bool {
	return s.GetState().Value == StateValueConnected
}

// ResetStateValue forces a notification on the next state update.
func (s *Status) ResetStateValue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Value = StateValueUnknown
}
