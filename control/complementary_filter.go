package control

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/gyroboard/gyroboard/spatialmath"
	"github.com/gyroboard/gyroboard/utils"
)

// DefaultComplementaryCoefficient is the weight given to the integrated gyro estimate.
const DefaultComplementaryCoefficient = 0.98

const angleLimit = 180.0

// ComplementaryFilter fuses accelerometer tilt with integrated gyro rate into roll and pitch.
// Yaw has no absolute reference and is gyro integration only, so it drifts without bound.
// Every reported angle is in (-180, 180] degrees.
//
// A ComplementaryFilter is not safe for concurrent use.
type ComplementaryFilter struct {
	coefficient   float64
	angleAcc      spatialmath.EulerAngles
	angle         spatialmath.EulerAngles
	preIntervalMs uint64
}

// NewComplementaryFilter returns a filter using DefaultComplementaryCoefficient.
func NewComplementaryFilter() *ComplementaryFilter {
	return &ComplementaryFilter{coefficient: DefaultComplementaryCoefficient}
}

// Coefficient returns the gyro weight in use.
func (f *ComplementaryFilter) Coefficient() float64 {
	return f.coefficient
}

// SetCoefficient sets the gyro weight. Values outside [0, 1] (and NaN) reset it to
// DefaultComplementaryCoefficient; the return value reports whether c was taken as given.
func (f *ComplementaryFilter) SetCoefficient(c float64) bool {
	if math.IsNaN(c) || c < 0 || c > 1 {
		f.coefficient = DefaultComplementaryCoefficient
		return false
	}
	f.coefficient = c
	return true
}

// SetAccelCoefficient sets the accelerometer weight, i.e. the gyro weight becomes 1 - a.
func (f *ComplementaryFilter) SetAccelCoefficient(a float64) bool {
	return f.SetCoefficient(1 - a)
}

// AccelTilt returns roll and pitch in degrees computed from gravity alone, each against the
// magnitude of the other two axes, so both stay within [-90, 90]. Yaw is always zero.
func AccelTilt(acc r3.Vector) spatialmath.EulerAngles {
	return spatialmath.EulerAngles{
		Roll:  utils.RadToDeg(math.Atan2(acc.Y, math.Sqrt(acc.Z*acc.Z+acc.X*acc.X))),
		Pitch: -utils.RadToDeg(math.Atan2(acc.X, math.Sqrt(acc.Z*acc.Z+acc.Y*acc.Y))),
	}
}

// Seed sets roll and pitch straight from the accelerometer, zeroes yaw, and makes nowMs the
// reference for the next Update.
func (f *ComplementaryFilter) Seed(acc r3.Vector, nowMs uint64) {
	f.angleAcc = AccelTilt(acc)
	f.angle = spatialmath.EulerAngles{Roll: f.angleAcc.Roll, Pitch: f.angleAcc.Pitch}.Wrapped(angleLimit)
	f.preIntervalMs = nowMs
}

// Reset zeroes every angle and moves the reference time to nowMs.
func (f *ComplementaryFilter) Reset(nowMs uint64) {
	f.angleAcc = spatialmath.EulerAngles{}
	f.angle = spatialmath.EulerAngles{}
	f.preIntervalMs = nowMs
}

// Update advances the estimate to nowMs using acc in g and gyro in deg/s. A timestamp earlier
// than the previous one (a wrapped clock) counts as a zero-length step.
func (f *ComplementaryFilter) Update(acc r3.Vector, gyro spatialmath.AngularVelocity, nowMs uint64) spatialmath.EulerAngles {
	var dt float64
	if nowMs >= f.preIntervalMs {
		dt = float64(nowMs-f.preIntervalMs) / 1000.0
	}
	f.preIntervalMs = nowMs

	f.angleAcc = AccelTilt(acc)
	gyroRoll := f.angle.Roll + gyro.X*dt
	gyroPitch := f.angle.Pitch + gyro.Y*dt

	f.angle = spatialmath.EulerAngles{
		Roll:  f.fuse(gyroRoll, f.angleAcc.Roll),
		Pitch: f.fuse(gyroPitch, f.angleAcc.Pitch),
		Yaw:   utils.WrapAngle(f.angle.Yaw+gyro.Z*dt, angleLimit),
	}
	return f.angle
}

// fuse blends c*gyro + (1-c)*acc, measuring the gyro estimate relative to the accelerometer one
// so the blend does not jump when the two sit on opposite sides of the +/-180 seam.
func (f *ComplementaryFilter) fuse(gyroAngle, accAngle float64) float64 {
	c := f.coefficient
	nearGyro := accAngle + utils.WrapAngle(gyroAngle-accAngle, angleLimit)
	return utils.WrapAngle(c*nearGyro+(1-c)*accAngle, angleLimit)
}

// Angle returns the fused roll, pitch and drifting yaw.
func (f *ComplementaryFilter) Angle() spatialmath.EulerAngles {
	return f.angle
}

// AngleAcc returns the accelerometer-only roll and pitch from the last Update or Seed.
func (f *ComplementaryFilter) AngleAcc() spatialmath.EulerAngles {
	return f.angleAcc
}

// PreIntervalMs returns the reference timestamp of the last Update or Seed.
func (f *ComplementaryFilter) PreIntervalMs() uint64 {
	return f.preIntervalMs
}
