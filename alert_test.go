package main

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type failingAlert struct{ calls int }

func (*failingAlert) Name() string { return "failing" }

func (a *failingAlert) Send(Event) error {
	a.calls++
	return errBoom
}

func TestAlertsNotifyEveryHandler(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("gate")
	bad := &failingAlert{}
	alerts := Alerts{bad, PublishAlert{Pub: tr, Topics: topics}}

	alerts.Notify(Event{Kind: EventMotion, At: time.Now()}, zap.NewNop())
	alerts.Notify(Event{Kind: EventPhoto, CaptureID: "abc"}, zap.NewNop())

	if bad.calls != 2 {
		t.Fatalf("failing handler called %d times", bad.calls)
	}
	if got := tr.on(topics.MotionState); len(got) != 1 || got[0] != "on" {
		t.Fatalf("motion %v", got)
	}
	if got := tr.on(topics.CameraState); len(got) != 1 || got[0] != "photo" {
		t.Fatalf("camera %v", got)
	}
	if err := (PublishAlert{Pub: tr, Topics: topics}).Send(Event{Kind: EventKind(9)}); err == nil {
		t.Fatal("unknown event published")
	}
}
