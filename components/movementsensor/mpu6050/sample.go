package mpu6050

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gyroboard/gyroboard/components/board/genericlinux/buses"
	"github.com/gyroboard/gyroboard/spatialmath"
	"github.com/gyroboard/gyroboard/utils"
)

// RawSample holds the seven output words in register order: accel X, Y, Z, temperature, gyro X,
// Y, Z. Each word is a two's-complement reading.
type RawSample [7]uint16

// DecodeRawSample splits a 14 byte burst read into big-endian words.
func DecodeRawSample(buf []byte) (RawSample, error) {
	var raw RawSample
	if len(buf) != rawSampleLength {
		return raw, errors.Wrapf(ErrInvalidSample, "expected %d bytes, got %d", rawSampleLength, len(buf))
	}
	for i := range raw {
		raw[i] = utils.Uint16FromBytesBE(buf[2*i : 2*i+2])
	}
	return raw, nil
}

func (raw RawSample) signed(i int) float64 {
	return float64(int16(raw[i]))
}

// PhysicalSample is one reading in physical units: acceleration in g, angular rate in deg/s.
type PhysicalSample struct {
	Accel        r3.Vector
	Gyro         spatialmath.AngularVelocity
	TemperatureC float64
}

// Offsets are subtracted from every converted reading.
type Offsets struct {
	Gyro  r3.Vector
	Accel r3.Vector
}

// Convert scales raw into physical units and removes offsets. When upsideDown is set the accel Z
// reading is negated before its offset is subtracted; no other axis is touched.
func (raw RawSample) Convert(scale Scale, offsets Offsets, upsideDown bool) (PhysicalSample, error) {
	if !scale.usable() {
		return PhysicalSample{}, ErrNotConfigured
	}
	zSign := 1.0
	if upsideDown {
		zSign = -1
	}
	return PhysicalSample{
		Accel: r3.Vector{
			X: raw.signed(0)/scale.AccelLSBPerG - offsets.Accel.X,
			Y: raw.signed(1)/scale.AccelLSBPerG - offsets.Accel.Y,
			Z: zSign*raw.signed(2)/scale.AccelLSBPerG - offsets.Accel.Z,
		},
		TemperatureC: (raw.signed(3) + tempLSBOffset) / tempLSBPerDegree,
		Gyro: spatialmath.AngularVelocity{
			X: raw.signed(4)/scale.GyroLSBPerDPS - offsets.Gyro.X,
			Y: raw.signed(5)/scale.GyroLSBPerDPS - offsets.Gyro.Y,
			Z: raw.signed(6)/scale.GyroLSBPerDPS - offsets.Gyro.Z,
		},
	}, nil
}

// readRaw points the register pointer at ACCEL_XOUT_H and burst reads all 14 output bytes while
// holding the bus.
func (mpu *MPU6050) readRaw(ctx context.Context) (raw RawSample, err error) {
	handle, err := mpu.bus.OpenHandle(mpu.i2cAddress)
	if err != nil {
		return raw, err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()

	if err := handle.Write(ctx, []byte{regAccelXOutH}); err != nil {
		return raw, err
	}
	buf, err := handle.Read(ctx, rawSampleLength)
	if err != nil {
		return raw, err
	}
	if len(buf) < rawSampleLength {
		return raw, buses.NewBusError("read", mpu.i2cAddress,
			errors.Wrapf(buses.ErrShortTransfer, "got %d of %d bytes", len(buf), rawSampleLength))
	}
	return DecodeRawSample(buf)
}

// fetch reads and converts one sample without touching the driver state.
func (mpu *MPU6050) fetch(ctx context.Context) (PhysicalSample, error) {
	if !mpu.scale.usable() {
		return PhysicalSample{}, ErrNotConfigured
	}
	raw, err := mpu.readRaw(ctx)
	if err != nil {
		return PhysicalSample{}, errors.Wrap(err, "reading mpu6050 sample")
	}
	return raw.Convert(mpu.scale, mpu.offsets, mpu.upsideDown)
}

// Fetch reads one sample in physical units. On error the previous sample is kept and nothing is
// substituted for the failed read.
func (mpu *MPU6050) Fetch(ctx context.Context) (PhysicalSample, error) {
	if mpu.state == StateUninitialized {
		return PhysicalSample{}, ErrNotConfigured
	}
	sample, err := mpu.fetch(ctx)
	if err != nil {
		return PhysicalSample{}, err
	}
	mpu.sample = sample
	mpu.hasSample = true
	return sample, nil
}
