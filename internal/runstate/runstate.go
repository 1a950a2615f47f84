// Package runstate holds the shared mutable cells one processing run hands to
// its workers: the cancellation flag, the per-file progress tracker, the live
// worker counter, and the first-error slot.
//
// Every run allocates fresh cells so concurrent runs can never interfere.
// All cells are safe for concurrent use; lock scope is a single field update.
package runstate

import "sync"

// CancelFlag is a cooperative cancellation signal. It transitions false→true
// at most once per run and is never reset; a new run allocates a new flag.
type CancelFlag struct {
	mu  sync.Mutex
	set bool
}

// NewCancelFlag returns an unset flag.
func NewCancelFlag() *CancelFlag { return &CancelFlag{} }

// Set marks the run as cancelled. A nil flag means no run is active and the
// request is dropped.
func (f *CancelFlag) Set() {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// Cancelled reports whether cancellation was requested.
func (f *CancelFlag) Cancelled() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Tracker records the most recently observed progress percentage per task.
type Tracker struct {
	mu       sync.Mutex
	progress []int
}

// NewTracker returns a zero-initialized tracker sized to the batch.
func NewTracker(size int) *Tracker {
	if size < 1 {
		size = 1
	}
	return &Tracker{progress: make([]int, size)}
}

// Update stores percent for the task at index and returns the aggregate batch
// percentage, round(sum/size). Out-of-range indexes leave the tracker
// untouched and return percent unchanged.
func (t *Tracker) Update(index, percent int) int {
	if t == nil {
		return percent
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if index >= 0 && index < len(t.progress) {
		t.progress[index] = percent
	}
	sum := 0
	for _, p := range t.progress {
		sum += p
	}
	return int(float64(sum)/float64(len(t.progress)) + 0.5)
}

// Snapshot returns a copy of the per-task percentages.
func (t *Tracker) Snapshot() []int {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.progress...)
}

// ActiveCount tracks how many workers are mid-task.
type ActiveCount struct {
	mu    sync.Mutex
	count int
}

// NewActiveCount returns a zeroed counter.
func NewActiveCount() *ActiveCount { return &ActiveCount{} }

// Inc marks a worker as busy.
func (a *ActiveCount) Inc() {
	a.mu.Lock()
	a.count++
	a.mu.Unlock()
}

// Dec marks a worker as idle. The count never drops below zero.
func (a *ActiveCount) Dec() {
	a.mu.Lock()
	if a.count > 0 {
		a.count--
	}
	a.mu.Unlock()
}

// Value returns the current busy-worker count.
func (a *ActiveCount) Value() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// ErrorSlot keeps the first error recorded for a run. Later writes are
// dropped; once set the value is immutable for the remainder of the run.
type ErrorSlot struct {
	mu  sync.Mutex
	err error
}

// NewErrorSlot returns an empty slot.
func NewErrorSlot() *ErrorSlot { return &ErrorSlot{} }

// Record stores err if the slot is empty and reports whether it won.
func (s *ErrorSlot) Record(err error) bool {
	if err == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false
	}
	s.err = err
	return true
}

// Err returns the recorded error, or nil.
func (s *ErrorSlot) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
