package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// minReportInterval is the shortest interval that enables a periodic report.
// Intervals at or below it (including 0) disable the report.
const minReportInterval = 1000

// Scheduler publishes the temperature and state reports when they fall due,
// and the one-shot reports requested by commands.
type Scheduler struct {
	pub    Publisher
	topics Topics
	probe  Thermometer
	sys    SystemInfo
	log    *zap.Logger

	lastTemp  time.Time
	lastState time.Time
}

// NewScheduler returns a scheduler whose intervals start counting at start.
func NewScheduler(pub Publisher, topics Topics, probe Thermometer, sys SystemInfo, log *zap.Logger, start time.Time) *Scheduler {
	return &Scheduler{
		pub:       pub,
		topics:    topics,
		probe:     probe,
		sys:       sys,
		log:       log,
		lastTemp:  start,
		lastState: start,
	}
}

// Tick runs the reports that are due at now.  A pending temperature request
// is served and cleared regardless of the interval.
func (s *Scheduler) Tick(now time.Time, dev *Device) {
	cfg := dev.Config
	if dev.Pending.ReportTemperatureNow || due(now, s.lastTemp, cfg.TempIntervalMs) {
		s.reportTemperature()
		s.lastTemp = now
		dev.Pending.ReportTemperatureNow = false
	}
	if due(now, s.lastState, cfg.StateIntervalMs) {
		if cfg.ReportState {
			if err := s.PublishTelemetry(); err != nil {
				s.log.Warn("state report", zap.Error(err))
			}
		}
		if cfg.ReportWiFi {
			if err := s.publishWiFi(); err != nil {
				s.log.Warn("wifi report", zap.Error(err))
			}
		}
		s.lastState = now
	}
}

func due(now, last time.Time, intervalMs int) bool {
	return intervalMs > minReportInterval && now.Sub(last) > time.Duration(intervalMs)*time.Millisecond
}

// reportTemperature reads the probe and publishes the value with two
// decimals.  Disconnected-probe readings are not published.
func (s *Scheduler) reportTemperature() {
	t, err := s.probe.Read()
	if err != nil {
		s.log.Warn("temperature probe", zap.Error(err))
		return
	}
	if t == DisconnectedTemp {
		s.log.Debug("temperature probe disconnected")
		return
	}
	if err := s.pub.Publish(s.topics.TemperatureState, strconv.FormatFloat(t, 'f', 2, 64)); err != nil {
		s.log.Warn("temperature report", zap.Error(err))
	}
}

func (s *Scheduler) publishWiFi() error {
	rssi, err := s.sys.RSSI()
	if err != nil {
		return err
	}
	return s.pub.Publish(s.topics.MonitorWiFi, strconv.Itoa(wifiPercent(rssi)))
}

// PublishTelemetry publishes the telemetry record once.
func (s *Scheduler) PublishTelemetry() error {
	return s.publishJSON(s.topics.MonitorState, buildTelemetry(s.sys, s.log))
}

// PublishConfig publishes cfg once.
func (s *Scheduler) PublishConfig(cfg Config) error {
	return s.publishJSON(s.topics.MonitorConfig, cfg)
}

// PublishCameraSettings publishes the persisted camera settings once.
func (s *Scheduler) PublishCameraSettings(cs CameraSettings) error {
	return s.publishJSON(s.topics.CameraSettings, cs)
}

func (s *Scheduler) publishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return s.pub.Publish(topic, string(data))
}

// buildTelemetry collects the state record.  Facts that cannot be read are
// left at their zero value; a missing RSSI reads as -100 dBm.
func buildTelemetry(sys SystemInfo, log *zap.Logger) Telemetry {
	t := Telemetry{
		IPAddress:   sys.IPAddress(),
		Uptime:      formatUptime(sys.Uptime()),
		StartReason: sys.StartReason(),
	}
	rssi, err := sys.RSSI()
	if err != nil {
		log.Debug("rssi unavailable", zap.Error(err))
		rssi = -100
	}
	t.RSSI = rssi
	t.WiFiPercent = wifiPercent(rssi)
	if c, err := sys.CoreTemp(); err == nil {
		t.CoreTempC = c
	} else {
		log.Debug("core temperature unavailable", zap.Error(err))
	}
	if free, minFree, err := sys.Memory(); err == nil {
		t.FreeMemory, t.MinFreeMemory = free, minFree
	} else {
		log.Debug("memory stats unavailable", zap.Error(err))
	}
	return t
}

// wifiPercent converts dBm to the 0..99 quality figure used on the dashboard.
func wifiPercent(rssi int) int {
	p := (rssi + 100) * 2
	if p > 99 {
		return 99
	}
	if p < 0 {
		return 0
	}
	return p
}

// formatUptime renders d as "<days>d<hours>:<mm>:<ss>".
func formatUptime(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%dd%d:%02d:%02d", sec/86400, sec/3600%24, sec/60%60, sec%60)
}
