// Package sim simulates a 1-Wire wire on a virtual microsecond clock so that
// bus and device code can run without hardware.
//
// The Line is both the owtemp.Line and the wire.Delayer of the bus under test:
// every Delay advances virtual time, and attached responders decide when they
// hold the wire low based on the master's edges.
//
//	line := sim.NewLine(sim.NewThermometer(21.5))
//	bus, err := wire.New(line, wire.WithDelayer(line))
package sim

import (
	"sync"
	"time"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/gpio"
)

const (
	// ResetMin is the shortest low pulse a device takes for a reset.
	ResetMin = 480 * time.Microsecond
	// SampleAt is when a device samples a write slot after the falling edge.
	SampleAt = 15 * time.Microsecond

	presenceFrom = 30 * time.Microsecond
	presenceTo   = 150 * time.Microsecond
	holdLow      = 30 * time.Microsecond
)

// Responder is a device attached to the simulated wire.
type Responder interface {
	// Reset is called when the master releases the wire after a reset pulse.
	// Returning true answers with a presence pulse.
	Reset() bool
	// SlotStart is called on every master falling edge other than a reset.
	// Returning true holds the wire low through the master's sampling point.
	SlotStart() bool
	// SlotEnd is called when the master releases the wire, with the time it
	// was held low.
	SlotEnd(low time.Duration)
}

// Edge is a level change driven by the master.
type Edge struct {
	At    time.Duration
	Level gpio.Level
}

type window struct {
	from, to time.Duration
}

var _ owtemp.Line = &Line{}

type Line struct {
	mx         sync.Mutex
	now        time.Duration
	master     gpio.Level
	fell       time.Duration
	stuck      *gpio.Level
	windows    []window
	responders []Responder
	edges      []Edge
	cfg        owtemp.LineConfig
	cfgErr     error
}

func NewLine(responders ...Responder) *Line {
	return &Line{
		master:     gpio.High,
		responders: responders,
		cfg:        owtemp.DefaultLineConfig(),
	}
}

func (l *Line) Attach(r Responder) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.responders = append(l.responders, r)
}

// FailConfigure makes the next Configure calls return err.
func (l *Line) FailConfigure(err error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.cfgErr = err
}

func (l *Line) Configure(cfg owtemp.LineConfig) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.cfgErr != nil {
		return l.cfgErr
	}
	l.cfg = cfg
	return nil
}

func (l *Line) Config() owtemp.LineConfig {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.cfg
}

func (l *Line) Set(level gpio.Level) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if level == l.master {
		return nil
	}
	l.master = level
	l.edges = append(l.edges, Edge{At: l.now, Level: level})
	if level == gpio.Low {
		l.fell = l.now
		for _, r := range l.responders {
			if r.SlotStart() {
				l.windows = append(l.windows, window{from: l.now, to: l.now + holdLow})
			}
		}
		return nil
	}
	low := l.now - l.fell
	if low >= ResetMin {
		l.windows = nil
		for _, r := range l.responders {
			if r.Reset() {
				l.windows = append(l.windows, window{from: l.now + presenceFrom, to: l.now + presenceTo})
			}
		}
		return nil
	}
	for _, r := range l.responders {
		r.SlotEnd(low)
	}
	return nil
}

// Get returns the wired-AND of the master and every responder.
func (l *Line) Get() gpio.Level {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.stuck != nil {
		return *l.stuck
	}
	if l.master == gpio.Low {
		return gpio.Low
	}
	for _, w := range l.windows {
		if l.now >= w.from && l.now < w.to {
			return gpio.Low
		}
	}
	return gpio.High
}

// Delay advances virtual time.
func (l *Line) Delay(d time.Duration) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.now += d
	kept := l.windows[:0]
	for _, w := range l.windows {
		if w.to > l.now {
			kept = append(kept, w)
		}
	}
	l.windows = kept
}

func (l *Line) Now() time.Duration {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.now
}

// Stick forces what Get reports, as if the wire was shorted to level.
func (l *Line) Stick(level gpio.Level) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.stuck = &level
}

func (l *Line) Unstick() {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.stuck = nil
}

func (l *Line) Edges() []Edge {
	l.mx.Lock()
	defer l.mx.Unlock()
	res := make([]Edge, len(l.edges))
	copy(res, l.edges)
	return res
}

// Pulses returns how long the master held the wire low, for each pulse in
// order.
func (l *Line) Pulses() []time.Duration {
	l.mx.Lock()
	defer l.mx.Unlock()
	var res []time.Duration
	var fell time.Duration
	for _, e := range l.edges {
		if e.Level == gpio.Low {
			fell = e.At
			continue
		}
		res = append(res, e.At-fell)
	}
	return res
}

// Written decodes the master's pulses as write slots, skipping resets.
func (l *Line) Written() []bool {
	var bits []bool
	for _, p := range l.Pulses() {
		if p >= ResetMin {
			continue
		}
		bits = append(bits, p < SampleAt)
	}
	return bits
}

func (l *Line) ClearEdges() {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.edges = nil
}
