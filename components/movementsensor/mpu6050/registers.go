package mpu6050

// Register map, from the MPU-6000/6050 register map and descriptions (rev 4.2). The output
// burst starting at ACCEL_XOUT_H holds accel X, Y, Z, then temperature at 0x41, then gyro X, Y, Z
// from 0x43, each word high byte first.
const (
	regSampleRateDivider = 0x19 // SMPLRT_DIV
	regConfig            = 0x1A // CONFIG, DLPF_CFG in bits 2:0
	regGyroConfig        = 0x1B // GYRO_CONFIG, FS_SEL in bits 4:3
	regAccelConfig       = 0x1C // ACCEL_CONFIG, AFS_SEL in bits 4:3
	regAccelXOutH        = 0x3B // first of the 14 output registers
	regPowerManagement1  = 0x6B // PWR_MGMT_1
	regWhoAmI            = 0x75
)

const (
	// Clear SLEEP and clock from the X gyro PLL.
	powerWakePLL byte = 0x01
	powerSleep   byte = 1 << 6

	defaultAddress   byte = 0x68
	alternateAddress byte = 0x69

	// WHO_AM_I reports the upper six bits of the default address whatever AD0 is wired to.
	expectedWhoAmI byte = 0x68

	// accelX, accelY, accelZ, temp, gyroX, gyroY, gyroZ as big-endian words.
	rawSampleLength = 14

	tempLSBPerDegree = 340.0
	tempLSBOffset    = 12412.0
)
