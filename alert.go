package main

// This file defines the handlers notified when the monitor sees motion or
// uploads a photo.

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventKind names a notable device event.
type EventKind int

const (
	EventMotion EventKind = iota
	EventPhoto
)

func (k EventKind) String() string {
	switch k {
	case EventMotion:
		return "motion"
	case EventPhoto:
		return "photo"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes one occurrence.  CaptureID is set for photos.
type Event struct {
	Kind      EventKind
	CaptureID string
	At        time.Time
}

// AlertHandler represents a mechanism that delivers an event somewhere.  If
// an error is returned, the caller logs it and carries on with the next
// handler.
type AlertHandler interface {
	Name() string
	Send(ev Event) error
}

// LogAlert records the event in the journal.
type LogAlert struct {
	Journal *EventLogger
}

func (LogAlert) Name() string { return "journal" }

func (a LogAlert) Send(ev Event) error {
	if ev.CaptureID != "" {
		a.Journal.Log("%s (capture %s)", ev.Kind, ev.CaptureID)
		return nil
	}
	a.Journal.Log("%s", ev.Kind)
	return nil
}

// PublishAlert announces the event on the broker: "on" on the motion state
// topic and "photo" on the camera state topic.
type PublishAlert struct {
	Pub    Publisher
	Topics Topics
}

func (PublishAlert) Name() string { return "mqtt" }

func (a PublishAlert) Send(ev Event) error {
	switch ev.Kind {
	case EventMotion:
		return a.Pub.Publish(a.Topics.MotionState, "on")
	case EventPhoto:
		return a.Pub.Publish(a.Topics.CameraState, "photo")
	}
	return fmt.Errorf("no topic for %s", ev.Kind)
}

// Alerts fans an event out to every handler.
type Alerts []AlertHandler

func (as Alerts) Notify(ev Event, log *zap.Logger) {
	for _, a := range as {
		if err := a.Send(ev); err != nil {
			log.Warn("alert failed", zap.String("handler", a.Name()), zap.Stringer("event", ev.Kind), zap.Error(err))
		}
	}
}
