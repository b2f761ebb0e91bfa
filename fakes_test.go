package main

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"
)

// memStore is an in-memory FileStore.
type memStore struct {
	files    map[string][]byte
	mountErr error
	writeErr error
	writes   int
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (m *memStore) Mount() error { return m.mountErr }

func (m *memStore) Exists(name string) bool {
	_, ok := m.files[name]
	return ok
}

func (m *memStore) ReadFile(name string) ([]byte, error) {
	b, ok := m.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

func (m *memStore) WriteFile(name string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Remove(name string) error {
	delete(m.files, name)
	return nil
}

type setCall struct {
	ctl   Control
	value int
}

// fakeSensor validates values like the real sensor and records every call.
type fakeSensor struct {
	mu     sync.Mutex
	format PixelFormat
	calls  []setCall
}

func (s *fakeSensor) PixelFormat() PixelFormat { return s.format }

func (s *fakeSensor) Set(ctl Control, value int) error {
	s.mu.Lock()
	s.calls = append(s.calls, setCall{ctl, value})
	s.mu.Unlock()
	return checkRange(ctl, value)
}

func (s *fakeSensor) callsFor(ctl Control) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, c := range s.calls {
		if c.ctl == ctl {
			out = append(out, c.value)
		}
	}
	return out
}

// fakeCamera hands out copies of frame and counts acquire/release pairs.
type fakeCamera struct {
	mu       sync.Mutex
	frame    Frame
	err      error
	sensor   *fakeSensor
	acquired int
	released int
	held     int
	maxHeld  int
}

func newFakeCamera(frame Frame) *fakeCamera {
	return &fakeCamera{frame: frame, sensor: &fakeSensor{format: frame.Format}}
}

func (c *fakeCamera) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.acquired++
	c.held++
	if c.held > c.maxHeld {
		c.maxHeld = c.held
	}
	f := c.frame
	f.Buf = append([]byte(nil), c.frame.Buf...)
	return &f, nil
}

func (c *fakeCamera) Release(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	c.held--
}

func (c *fakeCamera) Sensor() Sensor { return c.sensor }

func (c *fakeCamera) counts() (acquired, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired, c.released
}

// fakeTransport records publishes and serves queued messages.
type fakeTransport struct {
	mu         sync.Mutex
	published  []Message
	connected  bool
	connectErr error
	dials      int
	closed     bool
	inbox      chan Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, inbox: make(chan Message, inboxSize)}
}

func (t *fakeTransport) Publish(topic, payload string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, Message{Topic: topic, Payload: payload})
	return nil
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.dials++
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Connected() bool          { return t.connected }
func (t *fakeTransport) Messages() <-chan Message { return t.inbox }
func (t *fakeTransport) Close()                   { t.closed = true }

// on returns the payloads published on topic.
func (t *fakeTransport) on(topic string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, m := range t.published {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	t.published = nil
	t.mu.Unlock()
}

type fakeLED struct{ blinks []int }

func (l *fakeLED) Blink(n int) { l.blinks = append(l.blinks, n) }

type fakeProbe struct {
	temp  float64
	err   error
	reads int
}

func (p *fakeProbe) Read() (float64, error) {
	p.reads++
	return p.temp, p.err
}

type fakeSys struct {
	ip      string
	rssi    int
	rssiErr error
	core    float64
	uptime  time.Duration
	reason  string
	free    uint64
	minFree uint64
}

func (s *fakeSys) IPAddress() string               { return s.ip }
func (s *fakeSys) RSSI() (int, error)              { return s.rssi, s.rssiErr }
func (s *fakeSys) CoreTemp() (float64, error)      { return s.core, nil }
func (s *fakeSys) Uptime() time.Duration           { return s.uptime }
func (s *fakeSys) StartReason() string             { return s.reason }
func (s *fakeSys) Memory() (uint64, uint64, error) { return s.free, s.minFree, nil }

type fakeToggler struct {
	running bool
	toggles int
	err     error
}

func (t *fakeToggler) Toggle() (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	t.toggles++
	t.running = !t.running
	return t.running, nil
}

type fakeRestarter struct{ reasons []string }

func (r *fakeRestarter) Restart(why string) { r.reasons = append(r.reasons, why) }

var errBoom = errors.New("boom")
