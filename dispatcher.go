package main

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Device is the state owned by the control loop.  The dispatcher, the
// scheduler and the loop body all work on the same *Device; none of them
// touches it from another goroutine.
type Device struct {
	Config   Config
	Settings CameraSettings
	Pending  PendingActions
}

// PendingActions are requests set by commands or motion and consumed by the
// next loop tick.
type PendingActions struct {
	TakePhoto            bool
	ReportTemperatureNow bool
}

type streamToggler interface {
	Toggle() (bool, error)
}

type reporter interface {
	PublishTelemetry() error
	PublishConfig(cfg Config) error
	PublishCameraSettings(cs CameraSettings) error
}

// Dispatcher routes command messages to their handlers.  Any command that
// changes the Config is followed by one save and one config report.
type Dispatcher struct {
	topics   Topics
	dev      *Device
	motion   *MotionDetector
	settings *SettingsEngine
	stream   streamToggler
	reports  reporter
	store    *ConfigStore
	led      Indicator
	restart  func(why string)
	journal  *EventLogger
	log      *zap.Logger
}

// Handle executes one inbound message.  The returned error describes a
// rejected command; it has already been logged.
func (d *Dispatcher) Handle(msg Message) error {
	before := d.dev.Config
	var err error
	switch msg.Topic {
	case d.topics.CameraCmnd:
		err = d.cameraCommand(msg.Payload)
	case d.topics.CameraSetSetting:
		err = d.settings.Apply(&d.dev.Settings, msg.Payload)
	case d.topics.MotionCmnd:
		err = d.motionCommand(msg.Payload)
	case d.topics.TemperatureCmnd:
		err = d.temperatureCommand(msg.Payload)
	case d.topics.MonitorCmnd:
		err = d.monitorCommand(msg.Payload)
	default:
		err = newError(KindParse, "dispatch", "unexpected topic "+msg.Topic, nil)
	}
	if err != nil {
		d.log.Warn("command rejected", zap.String("topic", msg.Topic), zap.String("payload", msg.Payload), zap.Error(err))
	}
	if d.dev.Config != before {
		d.configChanged()
	}
	return err
}

func (d *Dispatcher) configChanged() {
	cfg := d.dev.Config
	d.motion.SetDelay(cfg.PIRDelayMs)
	if err := d.store.SaveConfig(cfg); err != nil {
		d.log.Error("saving config", zap.Error(err))
	}
	if err := d.reports.PublishConfig(cfg); err != nil {
		d.log.Warn("config report", zap.Error(err))
	}
	d.journal.Log("config changed: %+v", cfg)
}

func (d *Dispatcher) cameraCommand(cmd string) error {
	switch cmd {
	case "photo":
		d.dev.Pending.TakePhoto = true
	case "video":
		running, err := d.stream.Toggle()
		if err != nil {
			return err
		}
		d.log.Info("stream toggled", zap.Bool("running", running))
	case "enable":
		d.dev.Config.CamEnabled = true
	case "disable":
		d.dev.Config.CamEnabled = false
	case "settings":
		return d.reports.PublishCameraSettings(d.dev.Settings)
	default:
		return unknownCommand(cmd)
	}
	return nil
}

func (d *Dispatcher) motionCommand(cmd string) error {
	switch cmd {
	case "enable":
		d.dev.Config.PIREnabled = true
		d.motion.Reset()
		return nil
	case "disable":
		d.dev.Config.PIREnabled = false
		return nil
	}
	if keyword(cmd) != "delay" {
		return unknownCommand(cmd)
	}
	ms, err := parseSeconds(cmd)
	if err != nil {
		return err
	}
	d.dev.Config.PIRDelayMs = ms
	return nil
}

func (d *Dispatcher) temperatureCommand(cmd string) error {
	if cmd == "reading" {
		d.dev.Pending.ReportTemperatureNow = true
		return nil
	}
	if keyword(cmd) != "interval" {
		return unknownCommand(cmd)
	}
	ms, err := parseSeconds(cmd)
	if err != nil {
		return err
	}
	d.dev.Config.TempIntervalMs = ms
	return nil
}

func (d *Dispatcher) monitorCommand(cmd string) error {
	switch cmd {
	case "restart":
		d.led.Blink(3)
		d.restart("restart command")
		return nil
	case "getstate":
		d.led.Blink(1)
		return d.reports.PublishTelemetry()
	case "getconfig":
		d.led.Blink(1)
		return d.reports.PublishConfig(d.dev.Config)
	}
	switch keyword(cmd) {
	case "interval":
		ms, err := parseSeconds(cmd)
		if err != nil {
			return err
		}
		d.dev.Config.StateIntervalMs = ms
	case "ReportState":
		setFlag(&d.dev.Config.ReportState, cmd)
	case "ReportWiFi":
		setFlag(&d.dev.Config.ReportWiFi, cmd)
	default:
		return unknownCommand(cmd)
	}
	return nil
}

// keyword returns the part of cmd before the first colon.
func keyword(cmd string) string {
	k, _, _ := strings.Cut(cmd, ":")
	return k
}

// parseSeconds reads "<keyword>:<seconds>" and returns the value in
// milliseconds.  The seconds must be plain decimal digits and their
// millisecond form must fit in 32 bits.
func parseSeconds(cmd string) (int, error) {
	i := strings.IndexByte(cmd, ':')
	if i <= 0 || i == len(cmd)-1 {
		return 0, newError(KindParse, "parse seconds", "expected <keyword>:<seconds> in "+strconv.Quote(cmd), nil)
	}
	raw := cmd[i+1:]
	if !isDigits(raw) {
		return 0, newError(KindParse, "parse seconds", "not a number: "+strconv.Quote(raw), nil)
	}
	sec, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || sec > math.MaxInt32/1000 {
		return 0, newError(KindParse, "parse seconds", "out of range: "+raw, nil)
	}
	return int(sec) * 1000, nil
}

// setFlag applies "<keyword>:true" or "<keyword>:false".  Any other value
// leaves the flag alone.
func setFlag(flag *bool, cmd string) {
	i := strings.IndexByte(cmd, ':')
	if i <= 0 {
		return
	}
	switch cmd[i+1:] {
	case "true":
		*flag = true
	case "false":
		*flag = false
	}
}

func unknownCommand(cmd string) error {
	return newError(KindParse, "dispatch", "unknown command "+strconv.Quote(cmd), nil)
}
