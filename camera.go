package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
)

// PixelFormat describes the layout of Frame.Buf.
type PixelFormat int

const (
	PixelJPEG PixelFormat = iota
	PixelRGB888
	PixelGray
)

func (p PixelFormat) String() string {
	switch p {
	case PixelJPEG:
		return "jpeg"
	case PixelRGB888:
		return "rgb888"
	case PixelGray:
		return "gray"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

// Frame is one acquired image.  The buffer belongs to the camera until it is
// handed back with Release.
type Frame struct {
	Buf    []byte
	Width  int
	Height int
	Format PixelFormat
}

// Camera is the frame source shared by the stream handler and the photo
// pipeline.  Each caller holds at most one frame at a time and must Release
// it before acquiring the next.
type Camera interface {
	Acquire(ctx context.Context) (*Frame, error)
	Release(f *Frame)
	Sensor() Sensor
}

// Sensor exposes the per-setting actuators of the image sensor.
type Sensor interface {
	PixelFormat() PixelFormat
	Set(ctl Control, value int) error
}

// Control identifies one sensor actuator.
type Control int

const (
	ControlSaturation Control = iota
	ControlGainCeiling
	ControlColorBar
	ControlWhiteBalance
	ControlGainCtrl
	ControlExposureCtrl
	ControlAWBGain
	ControlAGCGain
	ControlAECValue
	ControlAEC2
	ControlDCW
	ControlBPC
	ControlWPC
	ControlRawGMA
	ControlLensCorrection
	ControlSpecialEffect
	ControlWBMode
	ControlAELevel
	ControlFrameSize
	ControlQuality
	ControlContrast
	ControlBrightness
	ControlHMirror
	ControlVFlip
	numControls
)

// controlRange holds the accepted value range per actuator.
var controlRange = [numControls]struct{ min, max int }{
	ControlSaturation:     {-2, 2},
	ControlGainCeiling:    {0, 6},
	ControlColorBar:       {0, 1},
	ControlWhiteBalance:   {0, 1},
	ControlGainCtrl:       {0, 1},
	ControlExposureCtrl:   {0, 1},
	ControlAWBGain:        {0, 1},
	ControlAGCGain:        {0, 30},
	ControlAECValue:       {0, 1200},
	ControlAEC2:           {0, 1},
	ControlDCW:            {0, 1},
	ControlBPC:            {0, 1},
	ControlWPC:            {0, 1},
	ControlRawGMA:         {0, 1},
	ControlLensCorrection: {0, 1},
	ControlSpecialEffect:  {0, 6},
	ControlWBMode:         {0, 4},
	ControlAELevel:        {-2, 2},
	ControlFrameSize:      {int(FrameQQVGA), int(FrameUXGA)},
	ControlQuality:        {10, 63},
	ControlContrast:       {-2, 2},
	ControlBrightness:     {-2, 2},
	ControlHMirror:        {0, 1},
	ControlVFlip:          {0, 1},
}

// checkRange returns an actuator error when value is outside the range the
// sensor accepts for ctl.
func checkRange(ctl Control, value int) error {
	if ctl < 0 || ctl >= numControls {
		return newError(KindActuator, "set", fmt.Sprintf("unknown control %d", int(ctl)), nil)
	}
	r := controlRange[ctl]
	if value < r.min || value > r.max {
		return newError(KindActuator, "set", fmt.Sprintf("value %d out of range [%d,%d]", value, r.min, r.max), nil)
	}
	return nil
}

// applyCameraSettings pushes a persisted settings record to the sensor.  All
// fields are attempted; the first failure is returned.
func applyCameraSettings(s Sensor, cs CameraSettings) error {
	if !cs.Valid {
		return newError(KindActuator, "apply settings", "record not valid", nil)
	}
	var first error
	set := func(ctl Control, v int) {
		if err := s.Set(ctl, v); err != nil && first == nil {
			first = err
		}
	}
	if s.PixelFormat() == PixelJPEG {
		set(ControlFrameSize, int(cs.FrameSize))
	}
	set(ControlQuality, cs.Quality)
	set(ControlContrast, cs.Contrast)
	set(ControlBrightness, cs.Brightness)
	set(ControlHMirror, boolToInt(cs.HMirror))
	set(ControlVFlip, boolToInt(cs.VFlip))
	return first
}

// frameToJPEG encodes a raw frame as JPEG at the given quality.  JPEG frames
// are returned unchanged.
func frameToJPEG(f *Frame, quality int) ([]byte, error) {
	if f.Format == PixelJPEG {
		return f.Buf, nil
	}
	var img image.Image
	switch f.Format {
	case PixelRGB888:
		if len(f.Buf) < f.Width*f.Height*3 {
			return nil, fmt.Errorf("short rgb888 frame: %d bytes for %dx%d", len(f.Buf), f.Width, f.Height)
		}
		rgba := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		for i, j := 0, 0; i < f.Width*f.Height; i, j = i+1, j+3 {
			rgba.Pix[i*4] = f.Buf[j]
			rgba.Pix[i*4+1] = f.Buf[j+1]
			rgba.Pix[i*4+2] = f.Buf[j+2]
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	case PixelGray:
		if len(f.Buf) < f.Width*f.Height {
			return nil, fmt.Errorf("short gray frame: %d bytes for %dx%d", len(f.Buf), f.Width, f.Height)
		}
		img = &image.Gray{Pix: f.Buf[:f.Width*f.Height], Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
	default:
		return nil, fmt.Errorf("cannot encode %s frame", f.Format)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
