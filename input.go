package phrames

import "sync"

// InputController turns pointer, touch and zoom-control events into
// Transform updates. Drag moves are coalesced through a FrameScheduler;
// discrete controls (zoom buttons, slider, reset) render immediately.
type InputController struct {
	sched *FrameScheduler

	mu        sync.Mutex
	transform Transform
	dragging  bool
	dragStart Point
}

// NewInputController returns a controller that calls render with each
// transform that should be painted. A nil clock uses a 60 Hz TimerClock.
func NewInputController(clock FrameClock, render func(Transform)) *InputController {
	return &InputController{
		sched:     NewFrameScheduler(clock, render),
		transform: Transform{Scale: 1},
	}
}

// Transform returns the current transform, including drag updates that
// have not been painted yet.
func (c *InputController) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform
}

// Dragging reports whether a drag is in progress.
func (c *InputController) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// SetTransform replaces the transform and paints it immediately.
func (c *InputController) SetTransform(t Transform) {
	c.show(t.Clamp())
}

func (c *InputController) show(t Transform) {
	c.mu.Lock()
	c.transform = t
	c.mu.Unlock()
	c.sched.Now(t)
}

// PointerDown starts a drag at p. The offset between p and the photo
// position is remembered so motion is relative.
func (c *InputController) PointerDown(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = true
	c.dragStart = p.Sub(Point{X: c.transform.X, Y: c.transform.Y})
}

// PointerMove updates the photo position while dragging and schedules a
// repaint. Moves outside a drag are ignored.
func (c *InputController) PointerMove(p Point) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}
	c.transform = Transform{
		X:     p.X - c.dragStart.X,
		Y:     p.Y - c.dragStart.Y,
		Scale: c.transform.Scale,
	}
	t := c.transform
	c.mu.Unlock()

	c.sched.Schedule(t)
}

// PointerUp ends the drag. A repaint still waiting for its frame is
// cancelled and the last pending transform is painted immediately, so the
// final position is never lost.
func (c *InputController) PointerUp() {
	c.mu.Lock()
	c.dragging = false
	c.mu.Unlock()

	c.sched.Flush()
}

// TouchStart begins a drag for single-finger touches. Multi-touch starts
// are ignored.
func (c *InputController) TouchStart(touches []Point) {
	if len(touches) != 1 {
		return
	}
	c.PointerDown(touches[0])
}

// TouchMove follows the first touch point.
func (c *InputController) TouchMove(touches []Point) {
	if len(touches) == 0 {
		return
	}
	c.PointerMove(touches[0])
}

// TouchEnd ends a touch drag.
func (c *InputController) TouchEnd() {
	c.PointerUp()
}

// Pan moves the photo by (dx, dy) and paints immediately.
func (c *InputController) Pan(dx, dy float64) {
	c.apply(func(t Transform) Transform { return Pan(t, dx, dy) })
}

// ZoomBy changes the scale by delta, clamped, and paints immediately.
func (c *InputController) ZoomBy(delta float64) {
	c.apply(func(t Transform) Transform { return Zoom(t, delta) })
}

// ZoomIn is the "+" button.
func (c *InputController) ZoomIn() { c.ZoomBy(ZoomStep) }

// ZoomOut is the "-" button.
func (c *InputController) ZoomOut() { c.ZoomBy(-ZoomStep) }

// SetSlider sets the scale from a slider position (scale * 100).
func (c *InputController) SetSlider(value int) {
	c.apply(func(t Transform) Transform { return FromSlider(t, value) })
}

// Reset restores the auto-cover transform for a photo of the given size.
// The cover scale may exceed MaxScale for small photos.
func (c *InputController) Reset(imgWidth, imgHeight int) {
	c.mu.Lock()
	c.dragging = false
	c.mu.Unlock()
	c.show(AutoFit(imgWidth, imgHeight, PreviewSize))
}

// Close cancels any outstanding frame without painting it.
func (c *InputController) Close() {
	c.sched.Cancel()
}

func (c *InputController) apply(fn func(Transform) Transform) {
	c.mu.Lock()
	c.transform = fn(c.transform)
	t := c.transform
	c.mu.Unlock()

	c.sched.Now(t)
}
