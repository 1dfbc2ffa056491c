// Package mpu6050 drives an MPU-6050 6-axis accelerometer and gyroscope over I2C and keeps a
// complementary-filter estimate of its roll, pitch and yaw. A datasheet for this chip is at
// https://components101.com/sites/default/files/component_datasheet/MPU6050-DataSheet.pdf and a
// description of the I2C registers is at
// https://download.datasheets.com/pdfs/2015/3/19/8/3/59/59/invse_/manual/5rm-mpu-6000a-00v4.2.pdf
//
// We do not support the digital interrupt pin, the FIFO, or the auxiliary I2C bus.
//
// The chip has two possible I2C addresses, which can be selected by wiring the AD0 pin to either
// hot or ground:
//   - if AD0 is wired to ground, it uses the default I2C address of 0x68
//   - if AD0 is wired to hot, it uses the alternate I2C address of 0x69
//
// If you use the alternate address, your config must set its "use_alt_i2c_address" boolean to
// true.
//
// An MPU6050 is owned by a single goroutine: none of its methods are safe for concurrent use.
package mpu6050

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gyroboard/gyroboard/components/board/genericlinux/buses"
	"github.com/gyroboard/gyroboard/control"
	"github.com/gyroboard/gyroboard/logging"
	"github.com/gyroboard/gyroboard/spatialmath"
	"github.com/gyroboard/gyroboard/utils"
)

// State is where the driver is in its lifecycle.
type State int

// Driver states, in the order they are reached.
const (
	StateUninitialized State = iota
	StateConfigured
	StateCalibrated
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateCalibrated:
		return "calibrated"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MPU6050 is a single MPU-6050 on an I2C bus.
type MPU6050 struct {
	bus        buses.I2C
	i2cAddress byte
	cfg        Config
	clock      clock.Clock
	start      time.Time
	logger     logging.Logger

	state        State
	sensorConfig SensorConfig
	// Zeroed whenever the matching range write fails, so stale constants are never used.
	scale      Scale
	upsideDown bool
	offsets    Offsets

	sample    PhysicalSample
	hasSample bool
	filter    *control.ComplementaryFilter
}

// New returns a driver for the chip on bus using the wall clock. Nothing is written to the chip
// until Begin.
func New(bus buses.I2C, cfg Config, logger logging.Logger) (*MPU6050, error) {
	return NewWithClock(bus, cfg, logger, clock.New())
}

// NewWithClock is New with an explicit time source for timestamps and delays.
func NewWithClock(bus buses.I2C, cfg Config, logger logging.Logger, clk clock.Clock) (*MPU6050, error) {
	if bus == nil {
		return nil, errors.New("mpu6050 needs an I2C bus")
	}
	if err := cfg.validateSettings("mpu6050"); err != nil {
		return nil, err
	}

	mpu := &MPU6050{
		bus:          bus,
		i2cAddress:   cfg.address(),
		cfg:          cfg,
		clock:        clk,
		start:        clk.Now(),
		logger:       logger,
		sensorConfig: cfg.SensorConfig(),
		upsideDown:   cfg.UpsideDown,
		filter:       control.NewComplementaryFilter(),
	}
	mpu.filter.SetCoefficient(cfg.coefficient())
	logger.Debugf("using address 0x%02x for MPU6050 sensor", mpu.i2cAddress)
	return mpu, nil
}

// Identify checks that the device at our address answers WHO_AM_I like an MPU-6050.
func (mpu *MPU6050) Identify(ctx context.Context) error {
	whoAmI, err := mpu.readByte(ctx, regWhoAmI)
	if err != nil {
		return errors.Wrapf(err, "can't read from I2C address 0x%02x", mpu.i2cAddress)
	}
	if whoAmI != expectedWhoAmI {
		return errors.Wrapf(ErrUnexpectedDevice, "address 0x%02x answered WHO_AM_I with 0x%02x",
			mpu.i2cAddress, whoAmI)
	}
	return nil
}

// Begin wakes the chip, applies the sample rate divider and filter bandwidth from the Config and
// the given ranges, then seeds the orientation estimate from one accelerometer reading. Any
// failure leaves the driver Uninitialized.
func (mpu *MPU6050) Begin(ctx context.Context, gyro GyroRange, accel AccelRange) error {
	mpu.state = StateUninitialized

	if err := mpu.writeRegister(ctx, regPowerManagement1, powerWakePLL); err != nil {
		return err
	}
	if err := mpu.writeRegister(ctx, regSampleRateDivider, mpu.sensorConfig.SampleRateDivider); err != nil {
		return err
	}
	if err := mpu.writeRegister(ctx, regConfig, mpu.sensorConfig.FilterBandwidth); err != nil {
		return err
	}
	if err := mpu.SetGyroConfig(ctx, gyro); err != nil {
		return err
	}
	if err := mpu.SetAccelConfig(ctx, accel); err != nil {
		return err
	}

	sample, err := mpu.fetchWithRetry(ctx)
	if err != nil {
		return errors.Wrap(err, "reading initial sample")
	}
	mpu.sample = sample
	mpu.hasSample = true
	mpu.filter.Seed(sample.Accel, mpu.NowMs())
	mpu.state = StateConfigured
	mpu.logger.Infow("MPU6050 configured",
		"address", mpu.i2cAddress,
		"gyro_range", mpu.sensorConfig.GyroRange.String(),
		"accel_range", mpu.sensorConfig.AccelRange.String())
	return nil
}

// SetGyroConfig writes the gyroscope full-scale range. Unknown ranges fall back to
// GyroRange250DPS with a warning. The cached sensitivity only changes once the write succeeds;
// on failure the driver holds no gyro sensitivity and drops back to Uninitialized.
func (mpu *MPU6050) SetGyroConfig(ctx context.Context, r GyroRange) error {
	if !r.Valid() {
		mpu.logger.Warnw("unknown gyro range, using fallback", "range", uint8(r), "fallback", r.Resolve().String())
	}
	r = r.Resolve()
	if err := mpu.writeRegister(ctx, regGyroConfig, r.registerValue()); err != nil {
		mpu.scale.GyroLSBPerDPS = 0
		mpu.state = StateUninitialized
		return err
	}
	mpu.sensorConfig.GyroRange = r
	mpu.scale.GyroLSBPerDPS = r.Sensitivity()
	return nil
}

// SetAccelConfig is SetGyroConfig for the accelerometer, falling back to AccelRange2G.
func (mpu *MPU6050) SetAccelConfig(ctx context.Context, r AccelRange) error {
	if !r.Valid() {
		mpu.logger.Warnw("unknown accel range, using fallback", "range", uint8(r), "fallback", r.Resolve().String())
	}
	r = r.Resolve()
	if err := mpu.writeRegister(ctx, regAccelConfig, r.registerValue()); err != nil {
		mpu.scale.AccelLSBPerG = 0
		mpu.state = StateUninitialized
		return err
	}
	mpu.sensorConfig.AccelRange = r
	mpu.scale.AccelLSBPerG = r.Sensitivity()
	return nil
}

// Sleep puts the chip into its low power sleep mode. Begin wakes it again.
func (mpu *MPU6050) Sleep(ctx context.Context) error {
	if err := mpu.writeByte(ctx, regPowerManagement1, powerSleep); err != nil {
		return errors.Wrap(err, "putting MPU6050 to sleep")
	}
	mpu.state = StateUninitialized
	return nil
}

// SetMounting declares whether the board is mounted upside down. Only the accelerometer Z axis
// is mirrored.
func (mpu *MPU6050) SetMounting(upsideDown bool) {
	mpu.upsideDown = upsideDown
}

// SetFilterCoefficient sets the gyro weight of the complementary filter. Values outside [0, 1]
// are replaced by the default with a warning.
func (mpu *MPU6050) SetFilterCoefficient(c float64) {
	if !mpu.filter.SetCoefficient(c) {
		mpu.logger.Warnw("filter coefficient out of range, using default",
			"coefficient", c, "default", control.DefaultComplementaryCoefficient)
	}
}

// SetAccelCoefficient sets the accelerometer weight of the complementary filter.
func (mpu *MPU6050) SetAccelCoefficient(a float64) {
	mpu.SetFilterCoefficient(1 - a)
}

// SetGyroOffsets replaces the gyro offsets, in deg/s.
func (mpu *MPU6050) SetGyroOffsets(gyro r3.Vector) {
	mpu.offsets.Gyro = gyro
}

// SetAccelOffsets replaces the accelerometer offsets, in g.
func (mpu *MPU6050) SetAccelOffsets(accel r3.Vector) {
	mpu.offsets.Accel = accel
}

// FetchAndUpdate reads one sample and advances the orientation estimate to nowMs. A failed read
// leaves the estimate and the last sample untouched. Begin takes its reference time from NowMs,
// so nowMs must come from the same clock; Poll does that for you.
func (mpu *MPU6050) FetchAndUpdate(ctx context.Context, nowMs uint64) error {
	sample, err := mpu.Fetch(ctx)
	if err != nil {
		return err
	}
	mpu.filter.Update(sample.Accel, sample.Gyro, nowMs)
	mpu.state = StateRunning
	return nil
}

// Poll is FetchAndUpdate timestamped by the driver's clock.
func (mpu *MPU6050) Poll(ctx context.Context) error {
	return mpu.FetchAndUpdate(ctx, mpu.NowMs())
}

// NowMs returns the milliseconds since the driver was created.
func (mpu *MPU6050) NowMs() uint64 {
	return utils.MillisSince(mpu.clock, mpu.start)
}

// State returns the lifecycle state.
func (mpu *MPU6050) State() State {
	return mpu.state
}

// Address returns the I2C address in use.
func (mpu *MPU6050) Address() byte {
	return mpu.i2cAddress
}

// Roll returns the fused roll in degrees.
func (mpu *MPU6050) Roll() float64 {
	return mpu.filter.Angle().Roll
}

// Pitch returns the fused pitch in degrees.
func (mpu *MPU6050) Pitch() float64 {
	return mpu.filter.Angle().Pitch
}

// YawDrifted returns the integrated yaw in degrees. It has no absolute reference and drifts.
func (mpu *MPU6050) YawDrifted() float64 {
	return mpu.filter.Angle().Yaw
}

// Angles returns roll, pitch and yaw together.
func (mpu *MPU6050) Angles() spatialmath.EulerAngles {
	return mpu.filter.Angle()
}

// AngleAcc returns the accelerometer-only roll and pitch of the last update.
func (mpu *MPU6050) AngleAcc() spatialmath.EulerAngles {
	return mpu.filter.AngleAcc()
}

// TemperatureC returns the die temperature of the last sample.
func (mpu *MPU6050) TemperatureC() float64 {
	return mpu.sample.TemperatureC
}

// Sample returns the last good sample, and false if there has not been one.
func (mpu *MPU6050) Sample() (PhysicalSample, bool) {
	return mpu.sample, mpu.hasSample
}

// Offsets returns the offsets currently subtracted from readings.
func (mpu *MPU6050) Offsets() Offsets {
	return mpu.offsets
}

// FilterCoefficient returns the gyro weight of the complementary filter.
func (mpu *MPU6050) FilterCoefficient() float64 {
	return mpu.filter.Coefficient()
}

// SensorConfig returns the last applied register configuration.
func (mpu *MPU6050) SensorConfig() SensorConfig {
	return mpu.sensorConfig
}

// Scale returns the sensitivities in use. A zero field means that range was never latched.
func (mpu *MPU6050) Scale() Scale {
	return mpu.scale
}

// writeRegister writes value to register, retrying on failure. When every attempt fails the
// error is a *ConfigurationError carrying each attempt's error.
func (mpu *MPU6050) writeRegister(ctx context.Context, register, value byte) error {
	retries := mpu.cfg.configRetries()
	var errs error
	attempts := 0
	for attempts < retries {
		attempts++
		err := mpu.writeByte(ctx, register, value)
		if err == nil {
			if attempts > 1 {
				mpu.logger.Debugw("register write succeeded after retry", "register", register, "attempt", attempts)
			}
			return nil
		}
		errs = multierr.Append(errs, err)
		mpu.logger.Debugw("register write failed", "register", register, "attempt", attempts, "error", err)
		if attempts == retries {
			break
		}
		if err := utils.SleepContext(ctx, mpu.clock, mpu.cfg.retryInterval()); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
	}
	return &ConfigurationError{Register: register, Value: value, Attempts: attempts, Err: errs}
}

func (mpu *MPU6050) fetchWithRetry(ctx context.Context) (PhysicalSample, error) {
	retries := mpu.cfg.configRetries()
	var errs error
	for attempt := 1; attempt <= retries; attempt++ {
		sample, err := mpu.fetch(ctx)
		if err == nil {
			return sample, nil
		}
		errs = multierr.Append(errs, err)
		if errors.Is(err, ErrNotConfigured) || attempt == retries {
			break
		}
		if err := utils.SleepContext(ctx, mpu.clock, mpu.cfg.retryInterval()); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
	}
	return PhysicalSample{}, errs
}

func (mpu *MPU6050) readByte(ctx context.Context, register byte) (byte, error) {
	handle, err := mpu.bus.OpenHandle(mpu.i2cAddress)
	if err != nil {
		return 0, err
	}
	defer func() {
		err := handle.Close()
		if err != nil {
			mpu.logger.Error(err)
		}
	}()

	return handle.ReadByteData(ctx, register)
}

func (mpu *MPU6050) writeByte(ctx context.Context, register, value byte) error {
	handle, err := mpu.bus.OpenHandle(mpu.i2cAddress)
	if err != nil {
		return err
	}
	defer func() {
		err := handle.Close()
		if err != nil {
			mpu.logger.Error(err)
		}
	}()

	return handle.WriteByteData(ctx, register, value)
}
