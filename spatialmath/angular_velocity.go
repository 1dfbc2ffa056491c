package spatialmath

import (
	"github.com/golang/geo/r3"
)

// AngularVelocity contains angular velocity in deg/s across x/y/z axes.
type AngularVelocity r3.Vector

// Sub returns the per-axis difference av - other.
func (av AngularVelocity) Sub(other AngularVelocity) AngularVelocity {
	return AngularVelocity(r3.Vector(av).Sub(r3.Vector(other)))
}

// Integrate returns the rotation accumulated over dt seconds at this rate, with X as roll, Y as
// pitch and Z as yaw.
func (av AngularVelocity) Integrate(dt float64) EulerAngles {
	return EulerAngles{
		Roll:  av.X * dt,
		Pitch: av.Y * dt,
		Yaw:   av.Z * dt,
	}
}

// Vector returns the rate as a plain vector.
func (av AngularVelocity) Vector() r3.Vector {
	return r3.Vector(av)
}
