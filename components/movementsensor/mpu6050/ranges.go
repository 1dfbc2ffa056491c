package mpu6050

import "fmt"

// GyroRange selects the gyroscope full-scale range. Values past GyroRange2000DPS are not
// rejected: they resolve to GyroRange250DPS, the documented fallback.
type GyroRange uint8

// Gyroscope full-scale ranges.
const (
	GyroRange250DPS GyroRange = iota
	GyroRange500DPS
	GyroRange1000DPS
	GyroRange2000DPS
)

// LSB per deg/s, indexed by GyroRange.
var gyroSensitivities = [...]float64{131.0, 65.5, 32.8, 16.4}

// Valid reports whether r is one of the four hardware ranges.
func (r GyroRange) Valid() bool {
	return r <= GyroRange2000DPS
}

// Resolve returns r, or GyroRange250DPS if r is not a hardware range.
func (r GyroRange) Resolve() GyroRange {
	if r.Valid() {
		return r
	}
	return GyroRange250DPS
}

// Sensitivity returns the LSB per deg/s of the resolved range.
func (r GyroRange) Sensitivity() float64 {
	return gyroSensitivities[r.Resolve()]
}

func (r GyroRange) registerValue() byte {
	return byte(r.Resolve()) << 3
}

func (r GyroRange) String() string {
	if !r.Valid() {
		return fmt.Sprintf("GyroRange(%d)", uint8(r))
	}
	return fmt.Sprintf("±%d°/s", 250<<r)
}

// AccelRange selects the accelerometer full-scale range. Values past AccelRange16G resolve to
// AccelRange2G, the documented fallback.
type AccelRange uint8

// Accelerometer full-scale ranges.
const (
	AccelRange2G AccelRange = iota
	AccelRange4G
	AccelRange8G
	AccelRange16G
)

// LSB per g, indexed by AccelRange.
var accelSensitivities = [...]float64{16384.0, 8192.0, 4096.0, 2048.0}

// Valid reports whether r is one of the four hardware ranges.
func (r AccelRange) Valid() bool {
	return r <= AccelRange16G
}

// Resolve returns r, or AccelRange2G if r is not a hardware range.
func (r AccelRange) Resolve() AccelRange {
	if r.Valid() {
		return r
	}
	return AccelRange2G
}

// Sensitivity returns the LSB per g of the resolved range.
func (r AccelRange) Sensitivity() float64 {
	return accelSensitivities[r.Resolve()]
}

func (r AccelRange) registerValue() byte {
	return byte(r.Resolve()) << 3
}

func (r AccelRange) String() string {
	if !r.Valid() {
		return fmt.Sprintf("AccelRange(%d)", uint8(r))
	}
	return fmt.Sprintf("±%dg", 2<<r)
}

// SensorConfig is the register configuration latched into the chip by Begin.
type SensorConfig struct {
	GyroRange         GyroRange
	AccelRange        AccelRange
	SampleRateDivider uint8
	FilterBandwidth   uint8 // DLPF_CFG, 0 (260 Hz) through 6 (5 Hz)
}

// Scale holds the sensitivities used to turn raw words into physical units.
type Scale struct {
	GyroLSBPerDPS float64
	AccelLSBPerG  float64
}

// ScaleFor returns the sensitivities of the resolved ranges.
func ScaleFor(gyro GyroRange, accel AccelRange) Scale {
	return Scale{GyroLSBPerDPS: gyro.Sensitivity(), AccelLSBPerG: accel.Sensitivity()}
}

func (s Scale) usable() bool {
	return s.GyroLSBPerDPS > 0 && s.AccelLSBPerG > 0
}
