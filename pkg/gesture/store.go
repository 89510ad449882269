package gesture

import (
	"fmt"
	"os"
	"sync"

	"github.com/gwillem/teachbot/pkg/fault"
)

// Store is the single active-gesture slot of a session.
type Store struct {
	mu       sync.RWMutex
	active   *Gesture
	rawTicks int
}

func NewStore() *Store {
	return &Store{}
}

// Active returns the active gesture, or nil. The gesture is shared, not
// copied: the editor mutates it in place.
func (s *Store) Active() *Gesture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Set replaces the active gesture and the raw tick counter that produced it.
func (s *Store) Set(g *Gesture, rawTicks int) {
	s.mu.Lock()
	s.active = g
	s.rawTicks = rawTicks
	s.mu.Unlock()
}

// RawTicks returns how many sensor reads produced the active gesture.
func (s *Store) RawTicks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rawTicks
}

// Len returns the keyframe count of the active gesture.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return 0
	}
	return s.active.Len()
}

// Load decodes data and makes it the active gesture. On error the previous
// gesture is left untouched.
func (s *Store) Load(data []byte) (*Gesture, error) {
	g, err := Load(data)
	if err != nil {
		return nil, err
	}
	s.Set(g, g.Len())
	return g, nil
}

// Save encodes the active gesture.
func (s *Store) Save() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, fmt.Errorf("%w: no gesture to save", fault.ErrEmpty)
	}
	return Save(s.active)
}

// LoadFile reads and activates a gesture file.
func (s *Store) LoadFile(path string) (*Gesture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gesture file: %w", err)
	}
	return s.Load(data)
}

// SaveFile writes the active gesture to path.
func (s *Store) SaveFile(path string) error {
	data, err := s.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write gesture file: %w", err)
	}
	return nil
}

// Clear discards the active gesture and its counters.
func (s *Store) Clear() {
	s.Set(nil, 0)
}
