package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Entry point for the gate monitor
func main() {
	configPath := flag.String("config", "/etc/gatemonitor/gatemonitor.yaml", "path to the options file")
	hashPw := flag.String("hash-password", "", "print the bcrypt hash of a stream password and exit")
	flag.Parse()

	if *hashPw != "" {
		fmt.Println(hashPassword(*hashPw))
		return
	}

	opts, err := LoadOptions(*configPath)
	if err != nil {
		log.Fatalf("failed to load options: %v", err)
	}
	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		log.Fatalf("initialisation error: %v", err)
	}
	logger = logger.With(zap.String("device", opts.DeviceName))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := buildMonitor(opts, logger)
	if err := mon.Run(ctx); err != nil {
		logger.Fatal("monitor exited", zap.Error(err))
	}
}

// buildMonitor opens the hardware and services.  Peripherals that fail to
// open are replaced by inert stand-ins; a camera that fails to initialise
// triggers a delayed restart.
func buildMonitor(opts Options, logger *zap.Logger) *Monitor {
	store := NewDirStore(opts.DataDir)
	journal := NewEventLogger(opts.JournalFile, logger.Named("journal"))
	restarter := newProcessRestarter(store, journal, logger)

	cam, err := newExecCamera(opts.Camera.Command, opts.Camera.Timeout)
	if err != nil {
		logger.Error("camera init failed", zap.Error(err), zap.Duration("restart_in", opts.RestartDelay))
		time.Sleep(opts.RestartDelay)
		restarter.Restart("camera init failed")
	}

	motion, err := newMotionSource(opts.GPIO.PIRPin)
	if err != nil {
		logger.Error("pir unavailable", zap.Error(err))
		motion = idleMotion{}
	}
	led, err := newIndicator(opts.GPIO.LEDPin, opts.GPIO.LEDActiveLow)
	if err != nil {
		logger.Warn("status led unavailable", zap.Error(err))
		led = noLED{}
	}
	probe, err := newThermometer(opts.GPIO.OneWireBus)
	if err != nil {
		logger.Warn("temperature probe unavailable", zap.Error(err))
		probe = absentProbe{}
	}

	reason := readStartReason(store, logger)
	journal.Log("start: %s", reason)
	deps := monitorDeps{
		Transport: newMQTTBroker(opts.MQTT, NewTopics(opts.MQTT.TopicPrefix), logger.Named("mqtt")),
		Camera:    cam,
		Motion:    motion,
		Probe:     probe,
		LED:       led,
		Sys:       newLinuxSysInfo(opts.WiFiInterface, reason),
		Restarter: restarter,
		Store:     store,
		Journal:   journal,
	}
	return newMonitor(opts, deps, logger)
}
