package bot

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStateExists is returned when a TurnState key is registered twice.
var ErrStateExists = errors.New("turn state key already set")

// StateKey is a typed key into a TurnState. Keys compare by name, so two
// keys with the same name and different types collide; GetState then
// reports the entry as missing.
type StateKey[T any] struct {
	name string
}

// NewStateKey declares a key. Declare keys as package-level variables.
func NewStateKey[T any](name string) StateKey[T] {
	return StateKey[T]{name: name}
}

// Name returns the key's name.
func (k StateKey[T]) Name() string { return k.name }

// TurnState is the turn-scoped registry shared by the adapter, middleware
// and the bot. It lives exactly as long as its TurnContext.
type TurnState struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewTurnState returns an empty registry.
func NewTurnState() *TurnState {
	return &TurnState{values: make(map[string]any)}
}

// SetState registers v under k. A second registration of the same key
// fails with ErrStateExists.
func SetState[T any](s *TurnState, k StateKey[T], v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[k.name]; exists {
		return fmt.Errorf("%w: %s", ErrStateExists, k.name)
	}
	s.values[k.name] = v
	return nil
}

// GetState returns the value stored under k.
func GetState[T any](s *TurnState, k StateKey[T]) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k.name].(T)
	return v, ok
}

// DeleteState removes k. Deleting a missing key is a no-op.
func DeleteState[T any](s *TurnState, k StateKey[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, k.name)
}

// Has reports whether any value is stored under name.
func (s *TurnState) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Len returns the number of entries.
func (s *TurnState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
