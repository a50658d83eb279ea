package phrames

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// FrameClock delivers animation-frame callbacks. Request arranges for fn to
// run once at the next frame and returns a function that cancels it.
// Cancel must be safe to call after fn has run.
type FrameClock interface {
	Request(fn func()) (cancel func())
}

// TimerClock fires frame callbacks after a fixed interval.
type TimerClock struct {
	interval time.Duration
}

// NewTimerClock returns a clock with the given frame interval. Non-positive
// intervals use DefaultFrameInterval.
func NewTimerClock(interval time.Duration) *TimerClock {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TimerClock{interval: interval}
}

// Request implements FrameClock.
func (c *TimerClock) Request(fn func()) func() {
	t := time.AfterFunc(c.interval, fn)
	return func() { t.Stop() }
}

// ManualClock queues frame callbacks until Tick is called. It is used to
// drive an engine deterministically, one frame at a time.
type ManualClock struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func()
	order   []int
}

// NewManualClock returns an empty manual clock.
func NewManualClock() *ManualClock {
	return &ManualClock{pending: make(map[int]func())}
}

// Request implements FrameClock.
func (c *ManualClock) Request(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.pending[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
}

// Pending returns the number of callbacks waiting for the next tick.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Tick runs every callback requested before the call, in request order.
// Callbacks requested while ticking wait for the next Tick.
func (c *ManualClock) Tick() {
	c.mu.Lock()
	order := c.order
	c.order = nil
	fns := make([]func(), 0, len(order))
	for _, id := range order {
		if fn, ok := c.pending[id]; ok {
			fns = append(fns, fn)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// FrameScheduler coalesces transform updates into at most one render per
// frame. It holds a single pending slot: each Schedule replaces the pending
// transform, and only the value present when the frame fires is rendered.
type FrameScheduler struct {
	clock  FrameClock
	render func(Transform)

	mu         sync.Mutex
	pending    Transform
	hasPending bool
	cancel     func()
	gen        uint64
}

// NewFrameScheduler returns a scheduler that calls render on clock frames.
// A nil clock uses a TimerClock at DefaultFrameInterval.
func NewFrameScheduler(clock FrameClock, render func(Transform)) *FrameScheduler {
	if clock == nil {
		clock = NewTimerClock(DefaultFrameInterval)
	}
	return &FrameScheduler{clock: clock, render: render}
}

// Schedule stores t as the pending transform and requests a frame if none
// is outstanding.
func (s *FrameScheduler) Schedule(t Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = t
	s.hasPending = true
	if s.cancel != nil {
		return
	}
	s.gen++
	gen := s.gen
	s.cancel = s.clock.Request(func() { s.fire(gen) })
}

// Cancel drops the outstanding frame and the pending transform.
func (s *FrameScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.hasPending = false
}

// Flush cancels the outstanding frame and renders the pending transform
// immediately, if there is one. It reports whether a render happened.
func (s *FrameScheduler) Flush() bool {
	s.mu.Lock()
	s.stopLocked()
	t, ok := s.pending, s.hasPending
	s.hasPending = false
	s.mu.Unlock()

	if ok {
		s.render(t)
	}
	return ok
}

// Now cancels any pending frame and renders t immediately.
func (s *FrameScheduler) Now(t Transform) {
	s.Cancel()
	s.render(t)
}

// Scheduled reports whether a frame is outstanding.
func (s *FrameScheduler) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *FrameScheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	// Invalidate a callback that already started running.
	s.gen++
}

func (s *FrameScheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	t, ok := s.pending, s.hasPending
	s.hasPending = false
	s.mu.Unlock()

	if ok {
		s.render(t)
	}
}
