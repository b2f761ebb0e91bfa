package main

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestMotionDebounce(t *testing.T) {
	var now atomic.Int64
	d := newMotionDetectorClock(20000, now.Load)

	now.Store(20001)
	if !d.Trigger() {
		t.Fatal("first edge after the delay rejected")
	}
	if !d.Take() {
		t.Fatal("pending motion not reported")
	}
	if d.Take() {
		t.Fatal("motion reported twice for one edge")
	}

	now.Store(20001 + 19999)
	if d.Trigger() {
		t.Fatal("edge inside the delay accepted")
	}
	if d.Take() {
		t.Fatal("rejected edge left motion pending")
	}

	now.Store(20001 + 20001)
	if !d.Trigger() {
		t.Fatal("edge after the delay rejected")
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestMotionDebounceExactDelay(t *testing.T) {
	var now atomic.Int64
	d := newMotionDetectorClock(1000, now.Load)
	now.Store(1001)
	d.Trigger()
	d.Take()

	now.Store(2001)
	if d.Trigger() {
		t.Fatal("edge exactly one delay later accepted")
	}
}

func TestMotionEdgesCoalesce(t *testing.T) {
	var now atomic.Int64
	d := newMotionDetectorClock(0, now.Load)
	for i := int64(1); i <= 5; i++ {
		now.Store(i)
		d.Trigger()
	}
	if !d.Take() || d.Take() {
		t.Fatal("several accepted edges before a Take must yield one event")
	}
}

func TestMotionResetAndSetDelay(t *testing.T) {
	var now atomic.Int64
	d := newMotionDetectorClock(100, now.Load)
	now.Store(500)
	d.Trigger()
	d.Reset()
	if d.Take() {
		t.Fatal("Reset did not clear pending motion")
	}

	d.SetDelay(1000)
	now.Store(1000)
	if d.Trigger() {
		t.Fatal("new delay not applied")
	}
	now.Store(1501)
	if !d.Trigger() {
		t.Fatal("edge after new delay rejected")
	}
}

func TestMotionConcurrentTriggerTake(t *testing.T) {
	var now atomic.Int64
	d := newMotionDetectorClock(0, now.Load)
	var taken atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 1000; i++ {
			now.Store(i)
			d.Trigger()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if d.Take() {
				taken.Add(1)
			}
		}
	}()
	wg.Wait()
	if d.Take() {
		taken.Add(1)
	}
	if taken.Load() == 0 || taken.Load() > 1000 {
		t.Fatalf("taken = %d", taken.Load())
	}
}
