package telegram

import (
	"sync"
	"time"

	"github.com/suspectuso/xlm-tipbot/internal/command"
)

// UserState is a command waiting for the user to confirm it
type UserState struct {
	State   string
	Command command.Command
	Expires time.Time
}

// StateManager keeps one pending state per user
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*UserState
	ttl    time.Duration
	now    func() time.Time
}

// NewStateManager creates a state manager whose entries expire after ttl
func NewStateManager(ttl time.Duration) *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Set replaces a user's pending state and drops every expired one
func (sm *StateManager) Set(userID int64, state string, cmd command.Command) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	for id, st := range sm.states {
		if now.After(st.Expires) {
			delete(sm.states, id)
		}
	}

	sm.states[userID] = &UserState{
		State:   state,
		Command: cmd,
		Expires: now.Add(sm.ttl),
	}
}

// Take returns and removes a user's pending state. Expired states are
// dropped and reported as missing.
func (sm *StateManager) Take(userID int64, state string) (*UserState, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, ok := sm.states[userID]
	if !ok || st.State != state {
		return nil, false
	}
	delete(sm.states, userID)
	if sm.now().After(st.Expires) {
		return nil, false
	}
	return st, true
}

// Clear removes a user's state
func (sm *StateManager) Clear(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, userID)
}

// State constants
const (
	StateConfirmRegister = "confirm_register"
)
