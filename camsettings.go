package main

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// settingSpec binds a setting name to its sensor actuator.  Settings with a
// persist function are also written into the CameraSettings record and saved.
type settingSpec struct {
	ctl      Control
	persist  func(s *CameraSettings, v int)
	jpegOnly bool
}

var settingTable = map[string]settingSpec{
	"saturation":     {ctl: ControlSaturation},
	"gainceiling":    {ctl: ControlGainCeiling},
	"colorbar":       {ctl: ControlColorBar},
	"awb":            {ctl: ControlWhiteBalance},
	"agc":            {ctl: ControlGainCtrl},
	"aec":            {ctl: ControlExposureCtrl},
	"awb_gain":       {ctl: ControlAWBGain},
	"agc_gain":       {ctl: ControlAGCGain},
	"aec_value":      {ctl: ControlAECValue},
	"aec2":           {ctl: ControlAEC2},
	"dcw":            {ctl: ControlDCW},
	"bpc":            {ctl: ControlBPC},
	"wpc":            {ctl: ControlWPC},
	"raw_gma":        {ctl: ControlRawGMA},
	"lenc":           {ctl: ControlLensCorrection},
	"special_effect": {ctl: ControlSpecialEffect},
	"wb_mode":        {ctl: ControlWBMode},
	"ae_level":       {ctl: ControlAELevel},

	"framesize": {ctl: ControlFrameSize, jpegOnly: true,
		persist: func(s *CameraSettings, v int) { s.FrameSize = FrameSize(v) }},
	"quality": {ctl: ControlQuality,
		persist: func(s *CameraSettings, v int) { s.Quality = v }},
	"contrast": {ctl: ControlContrast,
		persist: func(s *CameraSettings, v int) { s.Contrast = v }},
	"brightness": {ctl: ControlBrightness,
		persist: func(s *CameraSettings, v int) { s.Brightness = v }},
	"hmirror": {ctl: ControlHMirror,
		persist: func(s *CameraSettings, v int) { s.HMirror = v != 0 }},
	"vflip": {ctl: ControlVFlip,
		persist: func(s *CameraSettings, v int) { s.VFlip = v != 0 }},
}

// parseSetting splits "name:value".  The value is an optional leading minus
// followed by at least one decimal digit and nothing else.
func parseSetting(input string) (string, int, error) {
	i := strings.IndexByte(input, ':')
	if i <= 0 || i == len(input)-1 {
		return "", 0, newError(KindParse, "parse setting", "expected <name>:<value>", nil)
	}
	name, raw := input[:i], input[i+1:]
	digits := strings.TrimPrefix(raw, "-")
	if digits == "" || !isDigits(digits) {
		return "", 0, newError(KindParse, "parse setting", "value must be numeric", nil)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, newError(KindParse, "parse setting", "", err)
	}
	return name, v, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// SettingsEngine applies "name:value" commands to the camera sensor and keeps
// the persisted subset in sync with the store.
type SettingsEngine struct {
	sensor Sensor
	store  *ConfigStore
	log    *zap.Logger
}

// NewSettingsEngine returns an engine driving sensor.
func NewSettingsEngine(sensor Sensor, store *ConfigStore, log *zap.Logger) *SettingsEngine {
	return &SettingsEngine{sensor: sensor, store: store, log: log}
}

// Apply executes one setting command against the sensor and, for persisted
// settings, against s.  The literal "reset" restores the factory settings.
//
// A persisted setting is recorded and saved even when the actuator rejects the
// value; the actuator error is still returned.
func (e *SettingsEngine) Apply(s *CameraSettings, input string) error {
	if input == "reset" {
		return e.Reset(s)
	}
	name, v, err := parseSetting(input)
	if err != nil {
		return err
	}
	spec, ok := settingTable[name]
	if !ok {
		return newError(KindParse, "apply setting", "unknown setting "+strconv.Quote(name), nil)
	}
	if spec.jpegOnly && e.sensor.PixelFormat() != PixelJPEG {
		return newError(KindActuator, "apply setting", name+" requires jpeg pixel format", nil)
	}

	setErr := e.sensor.Set(spec.ctl, v)
	if setErr != nil {
		e.log.Warn("sensor rejected setting", zap.String("setting", name), zap.Int("value", v), zap.Error(setErr))
	}
	if spec.persist == nil {
		return setErr
	}
	if !s.Valid {
		e.log.Warn("camera settings not loaded, change not persisted", zap.String("setting", name))
		return setErr
	}
	spec.persist(s, v)
	if err := e.store.SaveCameraSettings(*s); err != nil {
		e.log.Error("saving camera settings", zap.Error(err))
		if setErr == nil {
			return err
		}
	}
	return setErr
}

// Reset deletes the stored settings, regenerates the factory record into s
// and applies it to the sensor.
func (e *SettingsEngine) Reset(s *CameraSettings) error {
	if err := e.store.RemoveCameraSettings(); err != nil {
		e.log.Error("removing camera settings", zap.Error(err))
	}
	*s = e.store.LoadCameraSettings()
	return applyCameraSettings(e.sensor, *s)
}
