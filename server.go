package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	streamBoundary = "123456789000000000000987654321"
	streamPartHdr  = "Content-Type: image/jpeg\r\nContent-Length: "
	streamDelim    = "\r\n--" + streamBoundary + "\r\n"

	// streamJPEGQuality is used when a raw frame has to be encoded.
	streamJPEGQuality = 80
	// reencodeMinWidth is the width above which raw frames are encoded for
	// the stream; narrower raw frames are skipped.
	reencodeMinWidth = 400
	// streamWriteTimeout bounds each part write to a stream client.
	streamWriteTimeout = 10 * time.Second
)

// StreamServer serves the live MJPEG stream.  It can be started and stopped
// repeatedly at runtime; the server handle is non-nil exactly while it runs.
type StreamServer struct {
	addr string
	cam  Camera
	auth *basicAuth
	log  *zap.Logger

	mu    sync.Mutex
	srv   *http.Server
	bound net.Addr
}

// NewStreamServer creates a stopped stream server.  auth may be nil.
func NewStreamServer(addr string, cam Camera, auth *basicAuth, log *zap.Logger) *StreamServer {
	return &StreamServer{addr: addr, cam: cam, auth: auth, log: log}
}

// Running reports whether the server is accepting connections.
func (s *StreamServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// boundAddr returns the listen address while running.
func (s *StreamServer) boundAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Start binds the listener and serves in the background.  Starting a running
// server does nothing.
func (s *StreamServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("stream listen %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.routes()}
	s.srv = srv
	s.bound = ln.Addr()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("stream server", zap.Error(err))
		}
	}()
	s.log.Info("stream started", zap.Stringer("addr", ln.Addr()))
	return nil
}

// Stop closes the listener and all active stream connections.  Stopping a
// stopped server does nothing.
func (s *StreamServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Close()
	s.srv = nil
	s.bound = nil
	s.log.Info("stream stopped")
	return err
}

// Toggle stops a running server or starts a stopped one.  It returns whether
// the server is running afterwards.
func (s *StreamServer) Toggle() (bool, error) {
	if s.Running() {
		return false, s.Stop()
	}
	if err := s.Start(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *StreamServer) routes() http.Handler {
	r := mux.NewRouter()
	var h http.Handler = http.HandlerFunc(s.handleStream)
	if s.auth != nil {
		h = s.auth.wrap(h)
	}
	r.Handle("/", h).Methods(http.MethodGet)
	return r
}

// handleStream writes frames until the client goes away, a frame cannot be
// acquired or a write fails.  Each frame is copied out and released before
// anything is written, so a slow client never holds the camera.
func (s *StreamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	rc := http.NewResponseController(w)
	ctx := r.Context()
	frames := 0
	defer func() {
		s.log.Debug("stream client gone", zap.String("remote", r.RemoteAddr), zap.Int("frames", frames))
	}()
	for {
		f, err := s.cam.Acquire(ctx)
		if err != nil {
			s.log.Debug("stream acquire", zap.Error(err))
			return
		}
		data, ok, err := streamPayload(f)
		s.cam.Release(f)
		if err != nil {
			s.log.Debug("stream encode", zap.Error(err))
			return
		}
		if !ok {
			continue
		}
		if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return
		}
		if err := writeStreamPart(w, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
		frames++
	}
}

// streamPayload returns the JPEG bytes for f in a buffer owned by the caller.
// It reports false when the frame is skipped.
func streamPayload(f *Frame) ([]byte, bool, error) {
	if f.Format == PixelJPEG {
		return append([]byte(nil), f.Buf...), true, nil
	}
	if f.Width <= reencodeMinWidth {
		return nil, false, nil
	}
	data, err := frameToJPEG(f, streamJPEGQuality)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// writeStreamPart writes one multipart part carrying data.
func writeStreamPart(w io.Writer, data []byte) error {
	hdr := streamPartHdr + strconv.Itoa(len(data)) + "\r\n\r\n"
	if _, err := io.WriteString(w, hdr); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, streamDelim)
	return err
}
