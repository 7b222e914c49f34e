// Package phase advances the circular mission timeline one step per tick.
package phase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

var (
	// ErrNoPhases indicates the timeline is empty.
	ErrNoPhases = errors.New("phase sequence is empty")
	// ErrMultipleActive indicates more than one seed phase is marked active.
	ErrMultipleActive = errors.New("more than one phase is active")
	// ErrInvalidProgress indicates a seed progress value outside [0, 100].
	ErrInvalidProgress = errors.New("phase progress out of range")
)

const (
	// Step is the progress gained by the active phase on each tick.
	Step = 2
	// Complete is the progress ceiling.
	Complete = 100
)

// Sequencer owns the ordered phase list. Activation rotates strictly forward
// and is independent of completion: a phase at 100 is still activated on its
// turn, it just stops gaining progress.
type Sequencer struct {
	mu     sync.RWMutex
	phases []model.Phase
}

// NewSequencer validates the seed phases and returns a Sequencer.
func NewSequencer(phases []model.Phase) (*Sequencer, error) {
	if len(phases) == 0 {
		return nil, ErrNoPhases
	}
	active := 0
	for _, p := range phases {
		if p.Progress < 0 || p.Progress > Complete {
			return nil, fmt.Errorf("%w: %q has %d", ErrInvalidProgress, p.Name, p.Progress)
		}
		if p.IsActive {
			active++
		}
	}
	if active > 1 {
		return nil, fmt.Errorf("%w: %d phases", ErrMultipleActive, active)
	}
	return &Sequencer{phases: append([]model.Phase(nil), phases...)}, nil
}

// Advance moves the active marker to the next phase (wrapping to the first)
// and grows that phase's progress by Step, clamped to Complete. Every other
// phase is marked inactive with its progress left as is.
func (s *Sequencer) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextIdx := (activeIndex(s.phases) + 1) % len(s.phases)
	next := make([]model.Phase, len(s.phases))
	for i, p := range s.phases {
		p.IsActive = i == nextIdx
		if p.IsActive && p.Progress < Complete {
			p.Progress = min(p.Progress+Step, Complete)
		}
		next[i] = p
	}
	s.phases = next
}

// Phases returns a copy of the timeline.
func (s *Sequencer) Phases() []model.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Phase(nil), s.phases...)
}

// ActiveIndex returns the index of the active phase, or -1 if none is active.
func (s *Sequencer) ActiveIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeIndex(s.phases)
}

// Active returns the active phase, if any.
func (s *Sequencer) Active() (model.Phase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := activeIndex(s.phases)
	if i < 0 {
		return model.Phase{}, false
	}
	return s.phases[i], true
}

func activeIndex(phases []model.Phase) int {
	for i, p := range phases {
		if p.IsActive {
			return i
		}
	}
	return -1
}
