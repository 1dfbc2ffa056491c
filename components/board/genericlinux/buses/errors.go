package buses

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShortTransfer is the cause when a device returned fewer bytes than requested.
	ErrShortTransfer = errors.New("short transfer")
	// ErrBusClosed is returned when opening a handle on a closed bus.
	ErrBusClosed = errors.New("i2c bus is closed")
	// ErrHandleClosed is returned when using a handle after Close.
	ErrHandleClosed = errors.New("i2c handle is closed")
)

// BusError is a transport-level failure talking to one device: a NACK, an arbitration loss or
// timeout reported by the controller, or a short transfer.
type BusError struct {
	Op   string
	Addr byte
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c %s at address 0x%02x: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BusError) Unwrap() error {
	return e.Err
}

// NewBusError wraps err as a *BusError. It returns nil for a nil err and leaves an existing
// *BusError untouched.
func NewBusError(op string, addr byte, err error) error {
	if err == nil {
		return nil
	}
	var busErr *BusError
	if errors.As(err, &busErr) {
		return err
	}
	return &BusError{Op: op, Addr: addr, Err: err}
}

// IsBusError reports whether err came from the bus transport.
func IsBusError(err error) bool {
	var busErr *BusError
	return errors.As(err, &busErr)
}
