//go:build !(linux && (arm || arm64)) || disablegpio

package main

// This file provides stand-in hardware for builds without Raspberry Pi GPIO,
// so the monitor can run on a desktop machine.  On the Pi, hal_rpi.go is used
// instead.

func newMotionSource(pin string) (MotionSource, error) { return idleMotion{}, nil }

func newIndicator(pin string, activeLow bool) (Indicator, error) { return noLED{}, nil }

func newThermometer(bus string) (Thermometer, error) { return absentProbe{}, nil }
