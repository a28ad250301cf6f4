// Package flow implements the per-purchase step state machine. One Flow
// instance drives one purchase attempt from "wallet connected" to "tokens
// recorded"; a failed attempt is abandoned and a fresh instance is created
// for the retry.
package flow

import (
	"fmt"
	"sync"
)

// StepStatus is the UI-facing status of one step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepLoading StepStatus = "loading"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// Step is one stage of a purchase or approval sequence.
type Step struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       StepStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Flow holds the ordered steps of one in-flight purchase attempt. All
// mutation goes through the methods below; observers read consistent
// copies via Snapshot. The machine never aborts on its own: after Fail the
// caller is responsible for not invoking further transitions.
type Flow struct {
	mu       sync.RWMutex
	steps    []Step
	current  int
	complete bool
	failed   bool
}

// New creates a machine over an ordered step list. Steps start pending;
// nothing is current until SetCurrentStep or Advance runs.
func New(steps []Step) *Flow {
	owned := make([]Step, len(steps))
	copy(owned, steps)
	for i := range owned {
		owned[i].Status = StepPending
		owned[i].ErrorMessage = ""
	}
	return &Flow{steps: owned, current: -1}
}

// SetCurrentStep marks the step loading. Ordering is not validated; the
// caller owns monotonic progression.
func (f *Flow) SetCurrentStep(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("unknown step: %s", id)
	}
	f.current = idx
	f.steps[idx].Status = StepLoading
	return nil
}

// Advance marks the current step success and the next step loading. When
// the last step succeeds the machine becomes complete.
func (f *Flow) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current < 0 || f.current >= len(f.steps) {
		return
	}
	f.steps[f.current].Status = StepSuccess

	next := f.current + 1
	if next >= len(f.steps) {
		f.complete = true
		return
	}
	f.current = next
	f.steps[next].Status = StepLoading
}

// Fail marks the step as errored with a user-facing message and latches
// the machine into its error state. Other steps are left untouched.
func (f *Flow) Fail(id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("unknown step: %s", id)
	}
	f.steps[idx].Status = StepError
	f.steps[idx].ErrorMessage = message
	f.failed = true
	return nil
}

// Complete marks every remaining step success and the machine complete.
func (f *Flow) Complete() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.steps {
		if f.steps[i].Status != StepError {
			f.steps[i].Status = StepSuccess
		}
	}
	f.complete = true
}

// Reset returns every step to pending. A machine that failed stays usable
// only through Reset; mid-flight error recovery is not supported.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.steps {
		f.steps[i].Status = StepPending
		f.steps[i].ErrorMessage = ""
	}
	f.current = -1
	f.complete = false
	f.failed = false
}

// IsComplete reports whether every step succeeded.
func (f *Flow) IsComplete() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.complete
}

// IsError reports whether any step failed.
func (f *Flow) IsError() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.failed
}

// CurrentStep returns the id of the loading step, or "" when none is.
func (f *Flow) CurrentStep() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current < 0 || f.current >= len(f.steps) {
		return ""
	}
	return f.steps[f.current].ID
}

// Snapshot returns a copy of the step list for UI observation.
func (f *Flow) Snapshot() []Step {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Step, len(f.steps))
	copy(out, f.steps)
	return out
}

func (f *Flow) indexOf(id string) int {
	for i := range f.steps {
		if f.steps[i].ID == id {
			return i
		}
	}
	return -1
}
