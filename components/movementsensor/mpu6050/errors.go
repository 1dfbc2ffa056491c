package mpu6050

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConfigured is returned when reading or calibrating before a successful Begin, or after
	// a failed range write left no usable sensitivity.
	ErrNotConfigured = errors.New("mpu6050 is not configured")
	// ErrInvalidSample is the cause when a raw sample buffer has the wrong length.
	ErrInvalidSample = errors.New("invalid raw sample")
	// ErrUnexpectedDevice is returned by Identify when WHO_AM_I does not match an MPU-6050.
	ErrUnexpectedDevice = errors.New("unexpected non-MPU6050 device")
)

// ConfigurationError reports a register write that kept failing after every retry. Err holds
// the error of each attempt.
type ConfigurationError struct {
	Register byte
	Value    byte
	Attempts int
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("writing 0x%02x to register 0x%02x failed after %d attempt(s): %v",
		e.Value, e.Register, e.Attempts, e.Err)
}

// Unwrap returns the combined attempt errors.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
