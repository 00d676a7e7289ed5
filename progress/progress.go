// Package progress provides AtomicProgress, a progress reporter that many
// goroutines can advance concurrently. Reporters created with Child share
// the state of their parent and cover only a fraction of it, so a long
// computation can hand each stage its own reporter without the stages
// knowing about each other.
package progress

import (
	"math"
	"sync/atomic"
)

// fractionBits is the number of fractional bits of the fixed-point value.
const fractionBits = 30

const scale = 1 << fractionBits

func toFixed(v float64) int64 { return int64(math.Round(v * scale)) }

func fromFixed(f int64) float64 { return float64(f) / scale }

type state struct {
	value    atomic.Int64
	canceled atomic.Bool
}

// AtomicProgress reports progress as a fraction in [0, 1], or -1 while busy
// with no estimate. Updates of the shared value are atomic; the step
// configuration of a single reporter (SetNumSteps, SetAvailablePercent) is
// not, and belongs to the goroutine that owns that reporter.
//
// A nil *AtomicProgress behaves like a detached reporter.
type AtomicProgress struct {
	numSteps    int
	available   float64
	stepPercent float64
	state       *state
}

// New creates a reporter with fresh state covering total of it (usually 1).
func New(total float64) *AtomicProgress {
	p := &AtomicProgress{state: &state{}}
	p.SetAvailablePercent(total)
	return p
}

// Detached creates a reporter without state. Updates are discarded, Value
// returns -1 and Canceled is always false.
func Detached() *AtomicProgress {
	p := &AtomicProgress{}
	p.SetAvailablePercent(1)
	return p
}

// Child returns a reporter sharing p's state and covering fraction of the
// share p covers.
func (p *AtomicProgress) Child(fraction float64) *AtomicProgress {
	if p == nil {
		return Detached()
	}
	c := &AtomicProgress{state: p.state}
	c.SetAvailablePercent(p.available * fraction)
	return c
}

// SetAvailablePercent sets the share of the shared state this reporter covers.
func (p *AtomicProgress) SetAvailablePercent(percent float64) {
	if p == nil {
		return
	}
	if p.numSteps == 0 {
		p.numSteps = 1
	}
	p.available = percent
	p.stepPercent = percent / float64(p.numSteps)
}

// SetNumSteps splits the reporter's share into n equal steps. n <= 0 makes a
// single step cover the whole share.
func (p *AtomicProgress) SetNumSteps(n int) {
	if p == nil {
		return
	}
	if n <= 0 {
		p.numSteps = 1
	} else {
		p.numSteps = n
	}
	p.stepPercent = p.available / float64(p.numSteps)
}

// Step advances the shared value by n steps.
func (p *AtomicProgress) Step(n int) {
	if p == nil || p.state == nil {
		return
	}
	p.state.value.Add(toFixed(float64(n) * p.stepPercent))
}

// Inc advances the shared value by one step.
func (p *AtomicProgress) Inc() { p.Step(1) }

// Reset overwrites the shared value.
func (p *AtomicProgress) Reset(v float64) {
	if p == nil || p.state == nil {
		return
	}
	p.state.value.Store(toFixed(v))
}

// Value returns the shared value, or -1 for a detached reporter.
func (p *AtomicProgress) Value() float64 {
	if p == nil || p.state == nil {
		return -1
	}
	return fromFixed(p.state.value.Load())
}

// SetDone marks the work as finished.
func (p *AtomicProgress) SetDone() { p.Reset(1) }

// SetBusy marks the work as running with no measurable progress.
func (p *AtomicProgress) SetBusy() { p.Reset(-1) }

// Cancel asks whoever does the work to stop. Work checks Canceled and
// returns early on its own; nothing is interrupted.
func (p *AtomicProgress) Cancel() {
	if p == nil || p.state == nil {
		return
	}
	p.state.canceled.Store(true)
}

// Canceled reports whether Cancel was called on any reporter sharing this
// value. A detached reporter is never canceled.
func (p *AtomicProgress) Canceled() bool {
	if p == nil || p.state == nil {
		return false
	}
	return p.state.canceled.Load()
}
