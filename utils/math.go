package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// AngleDiffDeg returns the closest difference from the two given
// angles. The arguments are commutative.
func AngleDiffDeg(a1, a2 float64) float64 {
	return float64(180) - math.Abs(math.Abs(a1-a2)-float64(180))
}

// WrapAngle folds angle into (-limit, limit] by repeatedly adding or subtracting 2*limit.
// Inputs more than a few turns away from the range are first reduced with math.Mod so the loops
// stay short; NaN, infinities and a non-positive limit are returned unchanged.
func WrapAngle(angle, limit float64) float64 {
	if limit <= 0 || math.IsNaN(angle) || math.IsInf(angle, 0) {
		return angle
	}
	period := 2 * limit
	if math.Abs(angle) > 8*period {
		angle = math.Mod(angle, period)
	}
	for angle > limit {
		angle -= period
	}
	for angle <= -limit {
		angle += period
	}
	return angle
}
