package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// stillCommands are tried in order when no capture command is configured.
// Newer Raspberry Pi OS releases ship rpicam-*, older ones libcamera-*.
var stillCommands = []string{"rpicam-jpeg", "libcamera-jpeg"}

// execCamera captures single JPEG stills by running rpicam-jpeg and reading
// the image from its stdout.  Only one frame may be outstanding at a time:
// Acquire blocks until the previous holder calls Release.
type execCamera struct {
	command string
	timeout time.Duration

	slot chan struct{}

	mu     sync.Mutex
	values [numControls]int
}

// newExecCamera resolves the capture command and returns a camera with
// factory sensor values.  A missing command is a camera initialization
// failure.
func newExecCamera(command string, timeout time.Duration) (*execCamera, error) {
	candidates := stillCommands
	if command != "" {
		candidates = []string{command}
	}
	var path string
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, newError(KindAcquisition, "camera init", fmt.Sprintf("none of %v found, install rpicam-apps", candidates), nil)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &execCamera{
		command: path,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
	}
	c.values[ControlFrameSize] = int(FrameVGA)
	c.values[ControlQuality] = 10
	c.values[ControlWhiteBalance] = 1
	c.values[ControlGainCtrl] = 1
	c.values[ControlExposureCtrl] = 1
	c.values[ControlAWBGain] = 1
	return c, nil
}

// Acquire captures one frame.  It waits for any outstanding frame to be
// released first.
func (c *execCamera) Acquire(ctx context.Context) (*Frame, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, newError(KindAcquisition, "acquire", "", ctx.Err())
	}
	f, err := c.capture(ctx)
	if err != nil {
		<-c.slot
		return nil, err
	}
	return f, nil
}

// Release hands the frame back and lets the next caller acquire.  Releasing
// a frame twice is a no-op.
func (c *execCamera) Release(f *Frame) {
	if f == nil || f.Buf == nil {
		return
	}
	f.Buf = nil
	select {
	case <-c.slot:
	default:
	}
}

func (c *execCamera) Sensor() Sensor { return c }

// PixelFormat is always JPEG; the still tools encode on the ISP.
func (c *execCamera) PixelFormat() PixelFormat { return PixelJPEG }

// Set records an actuator value.  It takes effect on the next capture.
func (c *execCamera) Set(ctl Control, value int) error {
	if err := checkRange(ctl, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.values[ctl] = value
	c.mu.Unlock()
	return nil
}

func (c *execCamera) capture(ctx context.Context) (*Frame, error) {
	c.mu.Lock()
	v := c.values
	c.mu.Unlock()

	fs := FrameSize(v[ControlFrameSize])
	w, h := fs.Dimensions()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command, stillArgs(v, w, h)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, newError(KindAcquisition, "capture", stderr.String(), err)
	}
	if stdout.Len() == 0 {
		return nil, newError(KindAcquisition, "capture", "empty frame", nil)
	}
	return &Frame{Buf: stdout.Bytes(), Width: w, Height: h, Format: PixelJPEG}, nil
}

// stillArgs translates the sensor values into rpicam-jpeg flags.  Controls
// without an rpicam equivalent are stored but not passed on.
func stillArgs(v [numControls]int, w, h int) []string {
	args := []string{
		"--width", strconv.Itoa(w),
		"--height", strconv.Itoa(h),
		"--timeout", "1",
		"--nopreview",
		"--output", "-",
		"--quality", strconv.Itoa(jpegQuality(v[ControlQuality])),
		"--brightness", formatFloat(float64(v[ControlBrightness]) * 0.25),
		"--contrast", formatFloat(1 + float64(v[ControlContrast])*0.25),
		"--saturation", formatFloat(1 + float64(v[ControlSaturation])*0.25),
		"--ev", strconv.Itoa(v[ControlAELevel]),
	}
	if v[ControlHMirror] != 0 {
		args = append(args, "--hflip")
	}
	if v[ControlVFlip] != 0 {
		args = append(args, "--vflip")
	}
	if v[ControlWhiteBalance] != 0 {
		args = append(args, "--awb", wbModes[v[ControlWBMode]])
	}
	return args
}

var wbModes = [...]string{"auto", "daylight", "cloudy", "fluorescent", "incandescent"}

// jpegQuality maps the sensor quality scale (10 best, 63 worst) onto the
// 0..100 JPEG scale.
func jpegQuality(q int) int {
	if q < 10 {
		q = 10
	}
	if q > 63 {
		q = 63
	}
	return 95 - (q-10)*85/53
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
