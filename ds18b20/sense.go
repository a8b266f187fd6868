package ds18b20

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	return d.sense(context.Background(), e)
}

func (d *Dev) sense(ctx context.Context, e *physic.Env) error {
	err := d.StartConversion(ctx)
	if err != nil {
		return err
	}
	spad, err := d.ReadScratchpad(ctx)
	if err != nil {
		return err
	}
	e.Temperature = spad.PhysicTemperature(d.Resolution())
	return nil
}

// SenseContinuous implements physic.SenseEnv. Readings are taken every
// interval until Halt is called. Failed readings are logged and skipped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("ds18b20: invalid sensing interval %s", interval)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.cancel != nil {
		return nil, errors.New("ds18b20: already sensing continuously")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	ch := make(chan physic.Env)
	go d.senseLoop(ctx, interval, ch, d.done)
	return ch, nil
}

func (d *Dev) senseLoop(ctx context.Context, interval time.Duration, ch chan<- physic.Env, done chan<- struct{}) {
	defer close(done)
	defer close(ch)
	ticker := d.config.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		var e physic.Env
		err := d.sense(ctx, &e)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("could not read temperature", "error", err)
		} else {
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			return
		}
	}
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / physic.Temperature(16>>(Resolution12Bit-d.Resolution()))
}

// Halt stops continuous sensing, if running.
func (d *Dev) Halt() error {
	d.mx.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mx.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
