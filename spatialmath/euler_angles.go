// Package spatialmath holds the small set of rotation types shared by the IMU driver and the
// orientation estimator. All angles are in degrees.
package spatialmath

import (
	"fmt"

	"github.com/gyroboard/gyroboard/utils"
)

// EulerAngles are roll (about X), pitch (about Y) and yaw (about Z) in degrees.
type EulerAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Add returns the per-axis sum.
func (ea EulerAngles) Add(other EulerAngles) EulerAngles {
	return EulerAngles{Roll: ea.Roll + other.Roll, Pitch: ea.Pitch + other.Pitch, Yaw: ea.Yaw + other.Yaw}
}

// Wrapped folds every axis into (-limit, limit].
func (ea EulerAngles) Wrapped(limit float64) EulerAngles {
	return EulerAngles{
		Roll:  utils.WrapAngle(ea.Roll, limit),
		Pitch: utils.WrapAngle(ea.Pitch, limit),
		Yaw:   utils.WrapAngle(ea.Yaw, limit),
	}
}

func (ea EulerAngles) String() string {
	return fmt.Sprintf("roll %.2f pitch %.2f yaw %.2f", ea.Roll, ea.Pitch, ea.Yaw)
}
