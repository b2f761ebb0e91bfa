package main

import (
	"os"

	"go.uber.org/zap"
)

// Start reasons reported in the telemetry record.
const (
	ReasonPowerOn  = "POWERON_RESET"
	ReasonSoftware = "SW_RESET"
)

// restartMarker is left in the data directory by a requested restart so the
// next boot can report it.
const restartMarker = "restart.marker"

// restartExitCode asks the service manager to start the monitor again.
const restartExitCode = 3

// Restarter ends the process so the service manager brings it back up.
type Restarter interface {
	Restart(why string)
}

type processRestarter struct {
	fs      FileStore
	journal *EventLogger
	log     *zap.Logger
	exit    func(code int)
}

func newProcessRestarter(fs FileStore, journal *EventLogger, log *zap.Logger) *processRestarter {
	return &processRestarter{fs: fs, journal: journal, log: log, exit: os.Exit}
}

// Restart records the reason and exits.  It does not return.
func (r *processRestarter) Restart(why string) {
	if err := r.fs.Mount(); err == nil {
		if err := r.fs.WriteFile(restartMarker, []byte(why)); err != nil {
			r.log.Warn("writing restart marker", zap.Error(err))
		}
	}
	r.journal.Log("restart: %s", why)
	r.log.Warn("restarting", zap.String("reason", why))
	_ = r.log.Sync()
	r.exit(restartExitCode)
}

// readStartReason reports whether this boot follows a requested restart and
// clears the marker.
func readStartReason(fs FileStore, log *zap.Logger) string {
	if err := fs.Mount(); err != nil {
		return ReasonPowerOn
	}
	if !fs.Exists(restartMarker) {
		return ReasonPowerOn
	}
	if err := fs.Remove(restartMarker); err != nil {
		log.Warn("clearing restart marker", zap.Error(err))
	}
	return ReasonSoftware
}
