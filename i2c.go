package owtemp

import (
	"context"
	"errors"
)

var ErrBusBusy = errors.New("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus carries the bridge chips that run a 1-Wire bus on behalf of the host.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
