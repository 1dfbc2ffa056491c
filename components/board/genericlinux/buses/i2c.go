package buses

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// I2cBus is an I2C bus opened through periph.io. Handles are exclusive: OpenHandle blocks while
// another handle is open, so a register select followed by a burst read can never be
// interleaved with another device's traffic.
type I2cBus struct {
	name string

	mu     sync.Mutex // held from OpenHandle until the handle is closed
	stateM sync.Mutex // guards bus and closed
	bus    i2c.BusCloser
	closed bool
}

// NewI2cBus initializes the host drivers and opens the named bus ("" picks the first one, "1"
// or "/dev/i2c-1" pick a specific one). A non-zero speed is applied to the bus clock.
func NewI2cBus(name string, speed physic.Frequency) (*I2cBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "error initializing host")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open I2C bus %q", name)
	}
	if speed != 0 {
		if err := bus.SetSpeed(speed); err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "can't set I2C bus %q to %s", name, speed), bus.Close())
		}
	}
	return NewI2cBusFromPeriph(name, bus), nil
}

// NewI2cBusFromPeriph wraps an already opened periph.io bus.
func NewI2cBusFromPeriph(name string, bus i2c.BusCloser) *I2cBus {
	return &I2cBus{name: name, bus: bus}
}

// Name returns the name the bus was opened with.
func (b *I2cBus) Name() string {
	return b.name
}

// OpenHandle locks the bus for addr. The returned handle MUST be closed.
func (b *I2cBus) OpenHandle(addr byte) (I2CHandle, error) {
	b.mu.Lock()
	b.stateM.Lock()
	closed := b.closed
	b.stateM.Unlock()
	if closed {
		b.mu.Unlock()
		return nil, NewBusError("open", addr, ErrBusClosed)
	}
	return &i2cHandle{bus: b, addr: addr}, nil
}

// Close releases the underlying bus. Waits for any open handle to be closed first.
func (b *I2cBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateM.Lock()
	defer b.stateM.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.bus.Close()
}

type i2cHandle struct {
	bus    *I2cBus
	addr   byte
	closed bool
}

func (h *i2cHandle) tx(ctx context.Context, op string, w, r []byte) error {
	if h.closed {
		return NewBusError(op, h.addr, ErrHandleClosed)
	}
	// periph transfers can't be interrupted; only refuse to start one.
	if err := ctx.Err(); err != nil {
		return err
	}
	return NewBusError(op, h.addr, h.bus.bus.Tx(uint16(h.addr), w, r))
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	return h.tx(ctx, "write", tx, nil)
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	if err := h.tx(ctx, "read", nil, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	result, err := h.ReadBlockData(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return result[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.tx(ctx, "write", []byte{register, data}, nil)
}

// ReadBlockData selects register and reads numBytes with a repeated start.
func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	buffer := make([]byte, numBytes)
	if err := h.tx(ctx, "read", []byte{register}, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	rawData := make([]byte, len(data)+1)
	rawData[0] = register
	copy(rawData[1:], data)
	return h.tx(ctx, "write", rawData, nil)
}

func (h *i2cHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.bus.mu.Unlock()
	return nil
}
