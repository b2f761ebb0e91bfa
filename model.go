package main

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Config is the runtime configuration persisted to config.json.  It is owned by
// the control loop and only the command dispatcher mutates it.  Interval and
// delay values are in milliseconds; an interval of 0 disables the periodic
// report.
type Config struct {
	CamEnabled      bool `json:"CAM_enabled"`   // photos are taken on motion or command
	PIREnabled      bool `json:"PIR_enabled"`   // motion events are acted upon
	PIRDelayMs      int  `json:"PIR_delay"`     // debounce window for the PIR sensor
	TempIntervalMs  int  `json:"TempInterval"`  // temperature report period
	ReportState     bool `json:"ReportState"`   // include the telemetry record in state reports
	ReportWiFi      bool `json:"ReportWiFi"`    // include the WiFi percentage in state reports
	StateIntervalMs int  `json:"StateInterval"` // state/WiFi report period
}

// DefaultConfig returns the configuration used on first boot or whenever the
// persisted record cannot be read.
func DefaultConfig() Config {
	return Config{
		CamEnabled:      true,
		PIREnabled:      true,
		PIRDelayMs:      20000,
		TempIntervalMs:  60000,
		ReportState:     true,
		ReportWiFi:      false,
		StateIntervalMs: 60000,
	}
}

// FrameSize is the camera resolution index, 0 (QQVGA) through 10 (UXGA).
type FrameSize int

const (
	FrameQQVGA FrameSize = iota
	FrameQQVGA2
	FrameQCIF
	FrameHQVGA
	FrameQVGA
	FrameCIF
	FrameVGA
	FrameSVGA
	FrameXGA
	FrameSXGA
	FrameUXGA
)

var frameSizes = [...]struct {
	name          string
	width, height int
}{
	FrameQQVGA:  {"QQVGA", 160, 120},
	FrameQQVGA2: {"QQVGA2", 128, 160},
	FrameQCIF:   {"QCIF", 176, 144},
	FrameHQVGA:  {"HQVGA", 240, 176},
	FrameQVGA:   {"QVGA", 320, 240},
	FrameCIF:    {"CIF", 400, 296},
	FrameVGA:    {"VGA", 640, 480},
	FrameSVGA:   {"SVGA", 800, 600},
	FrameXGA:    {"XGA", 1024, 768},
	FrameSXGA:   {"SXGA", 1280, 1024},
	FrameUXGA:   {"UXGA", 1600, 1200},
}

// Valid reports whether f names a known resolution.
func (f FrameSize) Valid() bool { return f >= 0 && int(f) < len(frameSizes) }

// Dimensions returns the width and height in pixels.  Unknown sizes fall back
// to VGA.
func (f FrameSize) Dimensions() (int, int) {
	if !f.Valid() {
		f = FrameVGA
	}
	return frameSizes[f].width, frameSizes[f].height
}

func (f FrameSize) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FrameSize(%d)", int(f))
	}
	return frameSizes[f].name
}

// CameraSettings is the persisted subset of sensor settings, stored in
// settings.json.  A record that was never loaded has Valid unset and must not
// be persisted or applied.
type CameraSettings struct {
	Valid      bool
	FrameSize  FrameSize // 0..10
	Quality    int       // 10 (best) .. 63
	Brightness int       // -2..2
	Contrast   int       // -2..2
	HMirror    bool
	VFlip      bool
}

// DefaultCameraSettings returns a valid record with factory values.
func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		Valid:     true,
		FrameSize: FrameVGA,
		Quality:   10,
	}
}

// settingsRecord is the on-disk form of CameraSettings.  Mirror and flip are
// stored as 0/1 integers.
type settingsRecord struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	FrameSize  int `json:"framesize"`
	Quality    int `json:"quality"`
	HMirror    int `json:"hmirror"`
	VFlip      int `json:"vflip"`
}

func (s CameraSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(settingsRecord{
		Brightness: s.Brightness,
		Contrast:   s.Contrast,
		FrameSize:  int(s.FrameSize),
		Quality:    s.Quality,
		HMirror:    boolToInt(s.HMirror),
		VFlip:      boolToInt(s.VFlip),
	})
}

// UnmarshalJSON fills the record from its on-disk form.  Keys missing from the
// document keep the factory defaults, and a successful decode marks the
// record valid.
func (s *CameraSettings) UnmarshalJSON(data []byte) error {
	def := DefaultCameraSettings()
	rec := settingsRecord{
		Brightness: def.Brightness,
		Contrast:   def.Contrast,
		FrameSize:  int(def.FrameSize),
		Quality:    def.Quality,
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*s = CameraSettings{
		Valid:      true,
		FrameSize:  FrameSize(rec.FrameSize),
		Quality:    rec.Quality,
		Brightness: rec.Brightness,
		Contrast:   rec.Contrast,
		HMirror:    rec.HMirror != 0,
		VFlip:      rec.VFlip != 0,
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Telemetry is the state report published on the monitor state topic.  The
// JSON keys are consumed by existing dashboards and must not change; some are
// not valid struct tag names, so MarshalJSON writes them explicitly.
type Telemetry struct {
	IPAddress     string
	RSSI          int
	WiFiPercent   int
	CoreTempC     float64
	Uptime        string
	StartReason   string
	FreeMemory    uint64
	MinFreeMemory uint64
}

func (t Telemetry) MarshalJSON() ([]byte, error) {
	fields := []struct {
		key string
		val any
	}{
		{"IP Address", t.IPAddress},
		{"RSSI (dBm)", t.RSSI},
		{"wifi", t.WiFiPercent},
		{"Core Temperature (°C)", t.CoreTempC},
		{"Uptime", t.Uptime},
		{"Start Reason", t.StartReason},
		{"Free Heap Memory", t.FreeMemory},
		{"Min Free Heap", t.MinFreeMemory},
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.val)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
