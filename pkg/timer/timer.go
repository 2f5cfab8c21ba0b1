// Package timer provides a periodic timer that can be added to a wait set.
//
// Timers are not handled by the transport: the wait set shortens its
// blocking timeout to the next timer deadline and evaluates readiness
// itself once the transport returns.
package timer

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrInvalidPeriod is returned for non-positive periods
	ErrInvalidPeriod = errors.New("timer period must be positive")
	// ErrCanceled is returned by Call on a canceled timer
	ErrCanceled = errors.New("timer is canceled")
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Timer fires every period. It is safe for concurrent use.
type Timer struct {
	mu       sync.Mutex
	period   time.Duration
	clock    Clock
	lastCall time.Time
	canceled bool
	callback func(lastCallDelta time.Duration)
}

// New creates a timer whose first deadline is one period from now. A nil
// clock uses time.Now; callback may be nil.
func New(period time.Duration, clock Clock, callback func(time.Duration)) (*Timer, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Timer{
		period:   period,
		clock:    clock,
		lastCall: clock(),
		callback: callback,
	}, nil
}

// Period returns the timer period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Call marks the timer as called now and runs its callback with the time
// since the previous call.
func (t *Timer) Call() error {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return ErrCanceled
	}
	now := t.clock()
	delta := now.Sub(t.lastCall)
	t.lastCall = now
	callback := t.callback
	t.mu.Unlock()

	if callback != nil {
		callback(delta)
	}
	return nil
}

// IsReady reports whether a period has elapsed since the last call.
func (t *Timer) IsReady() (bool, error) {
	left, err := t.TimeUntilNextCall()
	if err != nil {
		return false, err
	}
	return !t.IsCanceled() && left <= 0, nil
}

// TimeUntilNextCall returns the time left until the next deadline; it is
// negative when the timer is overdue.
func (t *Timer) TimeUntilNextCall() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCall.Add(t.period).Sub(t.clock()), nil
}

// Cancel stops the timer from becoming ready until Reset.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
}

// IsCanceled reports whether the timer is canceled.
func (t *Timer) IsCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Reset restarts the period from now and clears cancellation.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCall = t.clock()
	t.canceled = false
}
