// Package timekeeper measures how long something has been running, in slices
// that can be reported without losing time in between.
package timekeeper

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyPaused = errors.New("elapsing is paused already")
	ErrNotPaused     = errors.New("elapsing is not paused")
)

type ElapsingStatus int

const (
	Running ElapsingStatus = 1
	Pause   ElapsingStatus = 2
)

// Elapsing accumulates running time. Report returns what accumulated since
// the previous Report, so summing reports gives the total running time.
// Safe for concurrent use; a scheduler job typically calls Report while the
// owner pauses and resumes.
type Elapsing struct {
	mu sync.Mutex

	checkpoint time.Time
	carryOn    time.Duration
	status     ElapsingStatus
}

func NewElapsing() *Elapsing {
	return &Elapsing{
		// time.Now carries the monotonic clock, so deltas are safe
		checkpoint: time.Now(),
		status:     Running,
	}
}

// NewPausedElapsing starts in the paused state, for something that is not
// running yet
func NewPausedElapsing() *Elapsing {
	return &Elapsing{checkpoint: time.Now(), status: Pause}
}

func (e *Elapsing) Status() ElapsingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Elapsing) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == Pause {
		return ErrAlreadyPaused
	}

	e.carryOn += time.Since(e.checkpoint)
	e.status = Pause
	return nil
}

func (e *Elapsing) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != Pause {
		return ErrNotPaused
	}

	e.checkpoint = time.Now()
	e.status = Running
	return nil
}

// Report returns the running time since the last Report. Time accumulated
// before a pause is carried into the next report.
func (e *Elapsing) Report() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.carryOn
	e.carryOn = 0

	if e.status == Running {
		now := time.Now()
		total += now.Sub(e.checkpoint)
		e.checkpoint = now
	}
	return total
}
