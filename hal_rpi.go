//go:build linux && (arm || arm64) && !disablegpio

// This file provides the Raspberry Pi hardware using the periph.io library.
// When cross-compiling for other platforms or when the build tag
// "disablegpio" is specified, hal.go is used instead.

package main

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ds18b20"
	"periph.io/x/host/v3"
)

// initHost loads the periph drivers.  host.Init can safely be called multiple
// times; subsequent calls are no-ops.
func initHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

func lookupPin(name string) (gpio.PinIO, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", name)
	}
	return p, nil
}

// gpioMotionSource waits for rising edges on the PIR output pin.
type gpioMotionSource struct {
	pin gpio.PinIO
}

func newMotionSource(name string) (MotionSource, error) {
	p, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("configure %s for edges: %w", name, err)
	}
	return &gpioMotionSource{pin: p}, nil
}

// Run blocks in WaitForEdge with a short timeout so cancellation is noticed.
func (m *gpioMotionSource) Run(ctx context.Context, trigger func()) {
	defer m.pin.Halt()
	for ctx.Err() == nil {
		if m.pin.WaitForEdge(time.Second) {
			trigger()
		}
	}
}

// gpioIndicator drives the board LED.  The ESP32-CAM style boards wire the
// LED active low.
type gpioIndicator struct {
	pin     gpio.PinIO
	on, off gpio.Level
}

func newIndicator(name string, activeLow bool) (Indicator, error) {
	p, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	ind := &gpioIndicator{pin: p, on: gpio.High, off: gpio.Low}
	if activeLow {
		ind.on, ind.off = gpio.Low, gpio.High
	}
	if err := p.Out(ind.off); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}
	return ind, nil
}

// Blink flashes the LED n times, 60ms on with 100ms between flashes.
func (l *gpioIndicator) Blink(n int) {
	for i := 0; i < n; i++ {
		_ = l.pin.Out(l.on)
		time.Sleep(60 * time.Millisecond)
		_ = l.pin.Out(l.off)
		if i < n-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// ds18b20FamilyCode is the 1-wire family byte of the DS18B20.
const ds18b20FamilyCode = 0x28

// ds18b20Thermometer reads the first DS18B20 found on the 1-wire bus.
type ds18b20Thermometer struct {
	bus onewire.BusCloser
	dev *ds18b20.Dev
}

func newThermometer(busName string) (Thermometer, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	bus, err := onewirereg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open 1-wire bus %q: %w", busName, err)
	}
	addrs, err := bus.Search(false)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("search 1-wire bus: %w", err)
	}
	for _, a := range addrs {
		if a&0xff != ds18b20FamilyCode {
			continue
		}
		dev, err := ds18b20.New(bus, a, 12)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("ds18b20 %#x: %w", uint64(a), err)
		}
		return &ds18b20Thermometer{bus: bus, dev: dev}, nil
	}
	bus.Close()
	return nil, fmt.Errorf("no ds18b20 on 1-wire bus")
}

// Read performs a conversion and returns degrees Celsius.
func (t *ds18b20Thermometer) Read() (float64, error) {
	v, err := t.dev.Temperature()
	if err != nil {
		return DisconnectedTemp, err
	}
	return float64(v-physic.ZeroCelsius) / float64(physic.Celsius), nil
}
