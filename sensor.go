package main

import (
	"context"
	"sync/atomic"
	"time"
)

// DisconnectedTemp is the reading a DS18B20 probe reports when it is not
// connected.  Such readings are never published.
const DisconnectedTemp = -127.0

// MotionSource delivers PIR rising edges.  Run calls trigger from its own
// goroutine for every edge until ctx is cancelled.  trigger must not block.
type MotionSource interface {
	Run(ctx context.Context, trigger func())
}

// idleMotion never reports motion.
type idleMotion struct{}

func (idleMotion) Run(ctx context.Context, trigger func()) { <-ctx.Done() }

// Thermometer reads the gate temperature probe in degrees Celsius.
type Thermometer interface {
	Read() (float64, error)
}

// absentProbe behaves like a disconnected probe.  It stands in when no probe
// could be opened.
type absentProbe struct{}

func (absentProbe) Read() (float64, error) { return DisconnectedTemp, nil }

// Indicator is the status LED.
type Indicator interface {
	Blink(n int)
}

// noLED swallows blink requests.
type noLED struct{}

func (noLED) Blink(int) {}

// MotionDetector debounces PIR edges.  Trigger is called from the edge
// goroutine and only touches atomics; the control loop consumes events with
// Take.  An edge is accepted when more than the configured delay has passed
// since the last accepted edge.
type MotionDetector struct {
	clock func() int64 // monotonic milliseconds

	delayMs     atomic.Int64
	lastTrigger atomic.Int64
	pending     atomic.Bool
	dropped     atomic.Uint64
}

// NewMotionDetector returns a detector with the given debounce delay.  The
// clock starts at zero now, so edges within the first delay are ignored.
func NewMotionDetector(delayMs int) *MotionDetector {
	start := time.Now()
	return newMotionDetectorClock(delayMs, func() int64 {
		return time.Since(start).Milliseconds()
	})
}

func newMotionDetectorClock(delayMs int, clock func() int64) *MotionDetector {
	d := &MotionDetector{clock: clock}
	d.delayMs.Store(int64(delayMs))
	return d
}

// Trigger records a rising edge.  It reports whether the edge was accepted.
func (d *MotionDetector) Trigger() bool {
	now := d.clock()
	if now-d.lastTrigger.Load() > d.delayMs.Load() {
		d.lastTrigger.Store(now)
		d.pending.Store(true)
		return true
	}
	d.dropped.Add(1)
	return false
}

// Take consumes a pending motion event.  It returns true at most once per
// accepted edge.
func (d *MotionDetector) Take() bool {
	return d.pending.CompareAndSwap(true, false)
}

// Reset discards any pending event.
func (d *MotionDetector) Reset() {
	d.pending.Store(false)
}

// SetDelay changes the debounce window.
func (d *MotionDetector) SetDelay(ms int) {
	d.delayMs.Store(int64(ms))
}

// Dropped returns the number of edges rejected by the debounce window.
func (d *MotionDetector) Dropped() uint64 {
	return d.dropped.Load()
}
