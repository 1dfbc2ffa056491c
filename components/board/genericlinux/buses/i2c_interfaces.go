// Package buses offers the I2C bus shared by the IMU and the display on a generic Linux system.
package buses

import (
	"context"
)

// I2C represents a shareable I2C bus on the board.
type I2C interface {
	// OpenHandle locks the bus and returns a handle interface that MUST be closed when done.
	// You cannot have 2 open at once, for any address.
	OpenHandle(addr byte) (I2CHandle, error)
}

// I2CHandle is similar to an io handle. It MUST be closed to release the bus.
type I2CHandle interface {
	// Write sends tx to the device in a single transaction. For register devices the first byte
	// selects the register.
	Write(ctx context.Context, tx []byte) error
	// Read reads count bytes from the device in a single transaction.
	Read(ctx context.Context, count int) ([]byte, error)

	ReadByteData(ctx context.Context, register byte) (byte, error)
	WriteByteData(ctx context.Context, register, data byte) error

	ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error)
	WriteBlockData(ctx context.Context, register byte, data []byte) error

	// Close closes the handle and releases the lock on the bus.
	Close() error
}
