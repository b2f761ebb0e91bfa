package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testJPEG = []byte{0xff, 0xd8, 0xff, 0xd9}

func TestStreamStartStopIdempotent(t *testing.T) {
	cam := newFakeCamera(Frame{Buf: testJPEG, Width: 640, Height: 480, Format: PixelJPEG})
	s := NewStreamServer("127.0.0.1:0", cam, nil, zap.NewNop())

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	addr := s.boundAddr()
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if s.boundAddr() != addr {
		t.Fatal("second start rebound the listener")
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if s.Running() {
		t.Fatal("still running after stop")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	running, err := s.Toggle()
	if err != nil || !running {
		t.Fatalf("toggle on: %v %v", running, err)
	}
	running, err = s.Toggle()
	if err != nil || running {
		t.Fatalf("toggle off: %v %v", running, err)
	}
}

func TestStreamMultipart(t *testing.T) {
	cam := newFakeCamera(Frame{Buf: testJPEG, Width: 640, Height: 480, Format: PixelJPEG})
	s := NewStreamServer("127.0.0.1:0", cam, nil, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	resp, err := http.Get("http://" + s.boundAddr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace;boundary=123456789000000000000987654321" {
		t.Fatalf("content type %q", ct)
	}
	want := "Content-Type: image/jpeg\r\nContent-Length: 4\r\n\r\n" + string(testJPEG) +
		"\r\n--123456789000000000000987654321\r\n"
	buf := make([]byte, 2*len(want))
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != want+want {
		t.Fatalf("stream bytes %q", buf)
	}
	resp.Body.Close()
	s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		acquired, released := cam.counts()
		if acquired == released && acquired >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("acquired %d, released %d", acquired, released)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cam.mu.Lock()
	maxHeld := cam.maxHeld
	cam.mu.Unlock()
	if maxHeld > 1 {
		t.Fatalf("handler held %d frames at once", maxHeld)
	}
}

func TestStreamEndsOnAcquireError(t *testing.T) {
	cam := newFakeCamera(Frame{})
	cam.err = errBoom
	s := NewStreamServer("", cam, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.Len() != 0 {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestStreamRejectsPost(t *testing.T) {
	s := NewStreamServer("", newFakeCamera(Frame{}), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestStreamPayloadRawFrames(t *testing.T) {
	narrow := &Frame{Buf: make([]byte, 320*240*3), Width: 320, Height: 240, Format: PixelRGB888}
	if data, ok, err := streamPayload(narrow); err != nil || ok || data != nil {
		t.Fatalf("narrow raw frame: ok=%v err=%v len=%d", ok, err, len(data))
	}

	wide := &Frame{Buf: make([]byte, 640*480*3), Width: 640, Height: 480, Format: PixelRGB888}
	data, ok, err := streamPayload(wide)
	if err != nil || !ok {
		t.Fatalf("wide raw frame: ok=%v err=%v", ok, err)
	}
	var buf bytes.Buffer
	if err := writeStreamPart(&buf, data); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	if line, _ := r.ReadString('\n'); line != "Content-Type: image/jpeg\r\n" {
		t.Fatalf("first header %q", line)
	}
	_, _ = r.ReadString('\n')
	_, _ = r.ReadString('\n')
	payload, _ := io.ReadAll(r)
	if !bytes.HasPrefix(payload, []byte{0xff, 0xd8}) {
		t.Fatal("raw frame was not encoded as jpeg")
	}
	if !strings.HasSuffix(string(payload), streamDelim) {
		t.Fatal("part not terminated by the boundary")
	}
}

func TestStreamPayloadCopiesJPEG(t *testing.T) {
	f := &Frame{Buf: append([]byte(nil), testJPEG...), Format: PixelJPEG}
	data, ok, err := streamPayload(f)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	f.Buf[0] = 0
	if !bytes.Equal(data, testJPEG) {
		t.Fatal("payload shares the camera buffer")
	}
}

// slotCamera allows one outstanding frame, like the capture hardware.
type slotCamera struct {
	slot   chan struct{}
	buf    []byte
	sensor *fakeSensor
}

func newSlotCamera(buf []byte) *slotCamera {
	return &slotCamera{slot: make(chan struct{}, 1), buf: buf, sensor: &fakeSensor{format: PixelJPEG}}
}

func (c *slotCamera) Acquire(ctx context.Context) (*Frame, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Frame{Buf: c.buf, Width: 640, Height: 480, Format: PixelJPEG}, nil
}

func (c *slotCamera) Release(*Frame) { <-c.slot }

func (c *slotCamera) Sensor() Sensor { return c.sensor }

func TestStalledStreamClientDoesNotBlockCapture(t *testing.T) {
	cam := newSlotCamera(bytes.Repeat([]byte{0xab}, 8<<20))
	s := NewStreamServer("127.0.0.1:0", cam, nil, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.boundAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, "GET / HTTP/1.1\r\nHost: gate\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	// The client never reads, so the server's writes fill the socket
	// buffers and block.
	time.Sleep(300 * time.Millisecond)

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer upload.Close()
	u := NewUploader(UploadOptions{URL: upload.URL, Timeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := u.Capture(context.Background(), cam)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("capture blocked while a stream client stalled")
	}
}

func TestStreamBasicAuth(t *testing.T) {
	cam := newFakeCamera(Frame{})
	cam.err = errBoom
	auth := newBasicAuth(StreamOptions{Username: "gate", PasswordHash: hashPassword("secret")})
	s := NewStreamServer("", cam, auth, zap.NewNop())

	tests := []struct {
		user, pass string
		set        bool
		want       int
	}{
		{"", "", false, http.StatusUnauthorized},
		{"gate", "wrong", true, http.StatusUnauthorized},
		{"other", "secret", true, http.StatusUnauthorized},
		{"gate", "secret", true, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.set {
			req.SetBasicAuth(tt.user, tt.pass)
		}
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s/%s: status %d, want %d", tt.user, tt.pass, rec.Code, tt.want)
		}
	}
}

func TestNewBasicAuthDisabled(t *testing.T) {
	if newBasicAuth(StreamOptions{}) != nil {
		t.Fatal("auth enabled without a username")
	}
}
