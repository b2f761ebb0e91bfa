package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// reconnectInterval limits how often the loop dials a lost broker.
const reconnectInterval = 5 * time.Second

// Hardware and services the monitor is assembled from.
type monitorDeps struct {
	Transport Transport
	Camera    Camera
	Motion    MotionSource
	Probe     Thermometer
	LED       Indicator
	Sys       SystemInfo
	Restarter Restarter
	Store     FileStore
	Journal   *EventLogger
}

// Monitor runs the cooperative control loop.  Every tick it consumes motion,
// takes a pending photo, runs due reports, keeps the broker connected and
// handles queued commands, in that order.
type Monitor struct {
	opts      Options
	dev       *Device
	transport Transport
	camera    Camera
	source    MotionSource
	motion    *MotionDetector
	configs   *ConfigStore
	stream    *StreamServer
	uploader  *Uploader
	sched     *Scheduler
	dispatch  *Dispatcher
	alerts    Alerts
	led       Indicator
	restarter Restarter
	journal   *EventLogger
	log       *zap.Logger

	lastDial  time.Time
	announced bool
}

func newMonitor(opts Options, deps monitorDeps, log *zap.Logger) *Monitor {
	topics := NewTopics(opts.MQTT.TopicPrefix)
	configs := NewConfigStore(deps.Store, log.Named("store"))
	dev := &Device{}
	m := &Monitor{
		opts:      opts,
		dev:       dev,
		transport: deps.Transport,
		camera:    deps.Camera,
		source:    deps.Motion,
		motion:    NewMotionDetector(DefaultConfig().PIRDelayMs),
		configs:   configs,
		stream:    NewStreamServer(opts.Stream.Listen, deps.Camera, newBasicAuth(opts.Stream), log.Named("stream")),
		uploader:  NewUploader(opts.Upload),
		sched:     NewScheduler(deps.Transport, topics, deps.Probe, deps.Sys, log.Named("telemetry"), time.Now()),
		led:       deps.LED,
		restarter: deps.Restarter,
		journal:   deps.Journal,
		log:       log,
	}
	m.alerts = Alerts{
		PublishAlert{Pub: deps.Transport, Topics: topics},
		LogAlert{Journal: deps.Journal},
	}
	m.dispatch = &Dispatcher{
		topics:   topics,
		dev:      dev,
		motion:   m.motion,
		settings: NewSettingsEngine(deps.Camera.Sensor(), configs, log.Named("settings")),
		stream:   m.stream,
		reports:  m.sched,
		store:    configs,
		led:      deps.LED,
		restart:  m.restart,
		journal:  deps.Journal,
		log:      log.Named("dispatch"),
	}
	return m
}

// setup loads the persisted records, configures the camera and starts the
// stream and the motion source.
func (m *Monitor) setup(ctx context.Context) {
	m.dev.Config = m.configs.LoadConfig()
	m.motion.SetDelay(m.dev.Config.PIRDelayMs)
	m.dev.Settings = m.configs.LoadCameraSettings()
	if err := applyCameraSettings(m.camera.Sensor(), m.dev.Settings); err != nil {
		m.log.Warn("applying camera settings", zap.Error(err))
	}
	if m.opts.Stream.Autostart {
		if err := m.stream.Start(); err != nil {
			m.log.Error("starting stream", zap.Error(err))
		}
	}
	go m.source.Run(ctx, func() { m.motion.Trigger() })
	m.log.Info("monitor ready", zap.Any("config", m.dev.Config), zap.Stringer("framesize", m.dev.Settings.FrameSize))
	m.led.Blink(2)
}

// Run executes the control loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.setup(ctx)
	defer m.shutdown()

	interval := m.opts.LoopInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.tick(ctx, time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context, now time.Time) {
	if m.motion.Take() && m.dev.Config.PIREnabled {
		m.log.Info("motion detected", zap.Uint64("debounced_edges", m.motion.Dropped()))
		m.alerts.Notify(Event{Kind: EventMotion, At: now}, m.log)
		m.dev.Pending.TakePhoto = true
	}
	if m.dev.Pending.TakePhoto {
		m.dev.Pending.TakePhoto = false
		if m.dev.Config.CamEnabled {
			m.takePhoto(ctx, now)
		}
	}
	m.sched.Tick(now, m.dev)
	m.keepConnected(ctx, now)
	m.drainCommands()
}

// takePhoto captures and uploads one photo and announces it on success.
func (m *Monitor) takePhoto(ctx context.Context, now time.Time) {
	id, err := m.uploader.Capture(ctx, m.camera)
	if err != nil {
		m.log.Warn("photo failed", zap.String("capture_id", id), zap.Stringer("kind", kindOf(err)), zap.Error(err))
		return
	}
	m.log.Info("photo uploaded", zap.String("capture_id", id))
	m.alerts.Notify(Event{Kind: EventPhoto, CaptureID: id, At: now}, m.log)
}

// keepConnected dials the broker when the link is down.  After the first
// successful connection the telemetry record is published once.
func (m *Monitor) keepConnected(ctx context.Context, now time.Time) {
	if m.transport.Connected() {
		return
	}
	if !m.lastDial.IsZero() && now.Sub(m.lastDial) < reconnectInterval {
		return
	}
	m.lastDial = now
	if err := m.transport.Connect(ctx); err != nil {
		m.log.Warn("broker unreachable", zap.Error(err))
		return
	}
	m.log.Info("broker connected")
	if !m.announced {
		m.announced = true
		if err := m.sched.PublishTelemetry(); err != nil {
			m.log.Warn("startup report", zap.Error(err))
		}
	}
}

// drainCommands handles every command queued since the last tick.
func (m *Monitor) drainCommands() {
	for {
		select {
		case msg := <-m.transport.Messages():
			_ = m.dispatch.Handle(msg)
		default:
			return
		}
	}
}

func (m *Monitor) shutdown() {
	if err := m.stream.Stop(); err != nil {
		m.log.Warn("stopping stream", zap.Error(err))
	}
	m.transport.Close()
}

func (m *Monitor) restart(why string) {
	m.shutdown()
	m.restarter.Restart(why)
}
