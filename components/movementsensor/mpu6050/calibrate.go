package mpu6050

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/gyroboard/gyroboard/utils"
)

// axisSamples collects one series per axis.
type axisSamples [3][]float64

func newAxisSamples(capacity int) *axisSamples {
	var s axisSamples
	for i := range s {
		s[i] = make([]float64, 0, capacity)
	}
	return &s
}

func (s *axisSamples) add(v r3.Vector) {
	s[0] = append(s[0], v.X)
	s[1] = append(s[1], v.Y)
	s[2] = append(s[2], v.Z)
}

func (s *axisSamples) meanStdDev() (mean, std r3.Vector) {
	mx, sx := stat.MeanStdDev(s[0], nil)
	my, sy := stat.MeanStdDev(s[1], nil)
	mz, sz := stat.MeanStdDev(s[2], nil)
	return r3.Vector{X: mx, Y: my, Z: mz}, r3.Vector{X: sx, Y: sy, Z: sz}
}

// Calibrate averages a burst of readings taken while the sensor is at rest and uses the means as
// the new gyro and/or accelerometer offsets. The requested offsets are zeroed first so the
// readings are raw. The accelerometer means include gravity, so calibrating it leaves a level
// sensor reading zero on every axis.
//
// The sensor must not move while this runs; nothing detects it if it does. On error the previous
// offsets are restored. A driver that is already Running stays Running.
func (mpu *MPU6050) Calibrate(ctx context.Context, doGyro, doAccel bool) error {
	if mpu.state == StateUninitialized {
		return ErrNotConfigured
	}
	if !doGyro && !doAccel {
		return nil
	}

	previous := mpu.offsets
	if doGyro {
		mpu.offsets.Gyro = r3.Vector{}
	}
	if doAccel {
		mpu.offsets.Accel = r3.Vector{}
	}

	count := mpu.cfg.calibrationSamples()
	interval := mpu.cfg.calibrationInterval()
	gyro := newAxisSamples(count)
	accel := newAxisSamples(count)
	for i := 0; i < count; i++ {
		sample, err := mpu.fetch(ctx)
		if err != nil {
			mpu.offsets = previous
			return errors.Wrapf(err, "calibration aborted after %d of %d samples", i, count)
		}
		gyro.add(sample.Gyro.Vector())
		accel.add(sample.Accel)
		if err := utils.SleepContext(ctx, mpu.clock, interval); err != nil {
			mpu.offsets = previous
			return errors.Wrapf(err, "calibration aborted after %d of %d samples", i+1, count)
		}
	}

	if doGyro {
		mean, std := gyro.meanStdDev()
		mpu.offsets.Gyro = mean
		mpu.logger.CDebugw(ctx, "gyro calibrated", "offset", mean, "stddev", std)
	}
	if doAccel {
		mean, std := accel.meanStdDev()
		mpu.offsets.Accel = mean
		mpu.logger.CDebugw(ctx, "accel calibrated", "offset", mean, "stddev", std)
	}
	if mpu.state != StateRunning {
		mpu.state = StateCalibrated
	}
	return nil
}
