package mpu6050

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/test"

	"github.com/gyroboard/gyroboard/components/board/genericlinux/buses"
	"github.com/gyroboard/gyroboard/control"
	"github.com/gyroboard/gyroboard/logging"
	"github.com/gyroboard/gyroboard/spatialmath"
	"github.com/gyroboard/gyroboard/testutils/inject"
	"github.com/gyroboard/gyroboard/utils"
)

type registerWrite struct {
	register byte
	value    byte
}

// fakeChip answers register traffic the way an MPU-6050 does and serves bursts generated from
// whatever physical state the test puts it in.
type fakeChip struct {
	whoAmI    byte
	writes    []registerWrite
	pointer   byte
	addresses []byte

	// Register -> number of writes still to fail; negative fails forever.
	failWrites map[byte]int
	// Number of burst reads still to fail; negative fails forever.
	failReads int

	accel  r3.Vector
	gyro   spatialmath.AngularVelocity
	temp   int16
	noise  func() (r3.Vector, spatialmath.AngularVelocity)
	bursts int
}

func newFakeChip() *fakeChip {
	return &fakeChip{
		whoAmI:     expectedWhoAmI,
		failWrites: map[byte]int{},
		accel:      r3.Vector{Z: 1},
	}
}

func (c *fakeChip) scale() Scale {
	var gyro GyroRange
	var accel AccelRange
	for _, w := range c.writes {
		switch w.register {
		case regGyroConfig:
			gyro = GyroRange(w.value >> 3)
		case regAccelConfig:
			accel = AccelRange(w.value >> 3)
		}
	}
	return ScaleFor(gyro, accel)
}

func encodeWord(buf []byte, v float64) {
	w := int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	buf[0] = byte(uint16(w) >> 8)
	buf[1] = byte(uint16(w))
}

func (c *fakeChip) burst() []byte {
	accel, gyro := c.accel, c.gyro
	if c.noise != nil {
		accelNoise, gyroNoise := c.noise()
		accel = accel.Add(accelNoise)
		gyro = spatialmath.AngularVelocity(gyro.Vector().Add(gyroNoise.Vector()))
	}
	s := c.scale()
	buf := make([]byte, rawSampleLength)
	encodeWord(buf[0:], accel.X*s.AccelLSBPerG)
	encodeWord(buf[2:], accel.Y*s.AccelLSBPerG)
	encodeWord(buf[4:], accel.Z*s.AccelLSBPerG)
	encodeWord(buf[6:], float64(c.temp))
	encodeWord(buf[8:], gyro.X*s.GyroLSBPerDPS)
	encodeWord(buf[10:], gyro.Y*s.GyroLSBPerDPS)
	encodeWord(buf[12:], gyro.Z*s.GyroLSBPerDPS)
	return buf
}

func (c *fakeChip) writesTo(register byte) int {
	n := 0
	for _, w := range c.writes {
		if w.register == register {
			n++
		}
	}
	return n
}

func (c *fakeChip) bus() *inject.I2C {
	nack := errors.New("nack")
	return &inject.I2C{
		OpenHandleFunc: func(addr byte) (buses.I2CHandle, error) {
			c.addresses = append(c.addresses, addr)
			handle := &inject.I2CHandle{}
			handle.WriteByteDataFunc = func(ctx context.Context, register, data byte) error {
				c.writes = append(c.writes, registerWrite{register, data})
				if n := c.failWrites[register]; n != 0 {
					c.failWrites[register] = n - 1
					return buses.NewBusError("write", addr, nack)
				}
				return nil
			}
			handle.ReadByteDataFunc = func(ctx context.Context, register byte) (byte, error) {
				if register == regWhoAmI {
					return c.whoAmI, nil
				}
				return 0, nil
			}
			handle.WriteFunc = func(ctx context.Context, tx []byte) error {
				c.pointer = tx[0]
				return nil
			}
			handle.ReadFunc = func(ctx context.Context, count int) ([]byte, error) {
				if c.failReads != 0 {
					c.failReads--
					return nil, buses.NewBusError("read", addr, nack)
				}
				if c.pointer != regAccelXOutH || count != rawSampleLength {
					return make([]byte, count), nil
				}
				c.bursts++
				return c.burst(), nil
			}
			handle.CloseFunc = func() error { return nil }
			return handle, nil
		},
	}
}

func intPtr(v int) *int {
	return &v
}

func fastConfig() Config {
	return Config{
		RetryIntervalMs:       intPtr(0),
		CalibrationIntervalMs: intPtr(0),
	}
}

func newTestDriver(t *testing.T, chip *fakeChip, cfg Config) (*MPU6050, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	mpu, err := NewWithClock(chip.bus(), cfg, logging.NewTestLogger(t), clk)
	test.That(t, err, test.ShouldBeNil)
	return mpu, clk
}

func tiltedGravity(rollDeg, pitchDeg float64) r3.Vector {
	roll := utils.DegToRad(rollDeg)
	pitch := utils.DegToRad(pitchDeg)
	return r3.Vector{
		X: -math.Sin(pitch),
		Y: math.Cos(pitch) * math.Sin(roll),
		Z: math.Cos(pitch) * math.Cos(roll),
	}
}

func TestNew(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := New(nil, Config{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(newFakeChip().bus(), Config{GyroRange: 9}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gyro_range")

	chip := newFakeChip()
	mpu, err := New(chip.bus(), Config{UseAlternateI2CAddress: true}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mpu.Address(), test.ShouldEqual, byte(0x69))
	test.That(t, mpu.State(), test.ShouldEqual, StateUninitialized)
	test.That(t, mpu.FilterCoefficient(), test.ShouldEqual, 0.98)
	test.That(t, chip.writes, test.ShouldBeEmpty)

	coefficient := 0.9
	mpu, err = New(chip.bus(), Config{FilterCoefficient: &coefficient}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mpu.Address(), test.ShouldEqual, byte(0x68))
	test.That(t, mpu.FilterCoefficient(), test.ShouldEqual, 0.9)
}

func TestIdentify(t *testing.T) {
	chip := newFakeChip()
	mpu, _ := newTestDriver(t, chip, fastConfig())
	test.That(t, mpu.Identify(context.Background()), test.ShouldBeNil)

	chip.whoAmI = 0x70
	err := mpu.Identify(context.Background())
	test.That(t, errors.Is(err, ErrUnexpectedDevice), test.ShouldBeTrue)
}

func TestBeginWriteOrder(t *testing.T) {
	chip := newFakeChip()
	cfg := fastConfig()
	cfg.SampleRateDivider = 7
	cfg.FilterBandwidth = 3
	mpu, _ := newTestDriver(t, chip, cfg)

	err := mpu.Begin(context.Background(), GyroRange500DPS, AccelRange8G)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chip.writes, test.ShouldResemble, []registerWrite{
		{regPowerManagement1, 0x01},
		{regSampleRateDivider, 7},
		{regConfig, 3},
		{regGyroConfig, 1 << 3},
		{regAccelConfig, 2 << 3},
	})
	for _, addr := range chip.addresses {
		test.That(t, addr, test.ShouldEqual, byte(0x68))
	}
	test.That(t, mpu.State(), test.ShouldEqual, StateConfigured)
	test.That(t, mpu.Scale(), test.ShouldResemble, Scale{GyroLSBPerDPS: 65.5, AccelLSBPerG: 4096})
	test.That(t, mpu.SensorConfig(), test.ShouldResemble, SensorConfig{
		GyroRange: GyroRange500DPS, AccelRange: AccelRange8G, SampleRateDivider: 7, FilterBandwidth: 3,
	})

	sample, ok := mpu.Sample()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sample.Accel.Z, test.ShouldAlmostEqual, 1)
}

func TestBeginFallbackRange(t *testing.T) {
	chip := newFakeChip()
	logger, logs := logging.NewObservedTestLogger(t)
	mpu, err := NewWithClock(chip.bus(), fastConfig(), logger, clock.NewMock())
	test.That(t, err, test.ShouldBeNil)

	err = mpu.Begin(context.Background(), GyroRange(9), AccelRange(4))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mpu.SensorConfig().GyroRange, test.ShouldEqual, GyroRange250DPS)
	test.That(t, mpu.SensorConfig().AccelRange, test.ShouldEqual, AccelRange2G)
	test.That(t, mpu.Scale(), test.ShouldResemble, Scale{GyroLSBPerDPS: 131, AccelLSBPerG: 16384})
	test.That(t, logs.FilterMessage("unknown gyro range, using fallback").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("unknown accel range, using fallback").Len(), test.ShouldEqual, 1)
}

func TestBeginSeedsOrientation(t *testing.T) {
	chip := newFakeChip()
	chip.accel = tiltedGravity(15, -25)
	mpu, _ := newTestDriver(t, chip, fastConfig())

	test.That(t, mpu.Begin(context.Background(), GyroRange250DPS, AccelRange2G), test.ShouldBeNil)
	test.That(t, mpu.Roll(), test.ShouldAlmostEqual, control.AccelTilt(chip.accel).Roll, 0.05)
	test.That(t, mpu.Pitch(), test.ShouldAlmostEqual, -25, 0.05)
	test.That(t, mpu.YawDrifted(), test.ShouldEqual, 0)
}

func TestRegisterWriteRetry(t *testing.T) {
	t.Run("transient failure", func(t *testing.T) {
		chip := newFakeChip()
		chip.failWrites[regGyroConfig] = 2
		mpu, _ := newTestDriver(t, chip, fastConfig())

		test.That(t, mpu.Begin(context.Background(), GyroRange1000DPS, AccelRange2G), test.ShouldBeNil)
		test.That(t, chip.writesTo(regGyroConfig), test.ShouldEqual, 3)
		test.That(t, mpu.Scale().GyroLSBPerDPS, test.ShouldEqual, 32.8)
	})

	t.Run("persistent failure", func(t *testing.T) {
		chip := newFakeChip()
		chip.failWrites[regSampleRateDivider] = -1
		cfg := fastConfig()
		cfg.ConfigRetries = 4
		mpu, _ := newTestDriver(t, chip, cfg)

		err := mpu.Begin(context.Background(), GyroRange250DPS, AccelRange2G)
		var cfgErr *ConfigurationError
		test.That(t, errors.As(err, &cfgErr), test.ShouldBeTrue)
		test.That(t, cfgErr.Register, test.ShouldEqual, byte(regSampleRateDivider))
		test.That(t, cfgErr.Attempts, test.ShouldEqual, 4)
		test.That(t, multierr.Errors(cfgErr.Err), test.ShouldHaveLength, 4)
		test.That(t, buses.IsBusError(err), test.ShouldBeTrue)

		// Nothing past the failed register is written.
		test.That(t, chip.writesTo(regConfig), test.ShouldEqual, 0)
		test.That(t, mpu.State(), test.ShouldEqual, StateUninitialized)

		err = mpu.FetchAndUpdate(context.Background(), 10)
		test.That(t, errors.Is(err, ErrNotConfigured), test.ShouldBeTrue)
	})

	t.Run("retry waits on the clock", func(t *testing.T) {
		chip := newFakeChip()
		chip.failWrites[regPowerManagement1] = 1
		mpu, clk := newTestDriver(t, chip, Config{})

		done := make(chan error, 1)
		go func() {
			done <- mpu.Begin(context.Background(), GyroRange250DPS, AccelRange2G)
		}()
		var err error
		for finished := false; !finished; {
			select {
			case err = <-done:
				finished = true
			default:
				clk.Add(time.Millisecond)
			}
		}
		test.That(t, err, test.ShouldBeNil)
		test.That(t, chip.writesTo(regPowerManagement1), test.ShouldEqual, 2)
	})

	t.Run("cancelled context", func(t *testing.T) {
		chip := newFakeChip()
		chip.failWrites[regPowerManagement1] = -1
		mpu, _ := newTestDriver(t, chip, Config{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := mpu.Begin(ctx, GyroRange250DPS, AccelRange2G)
		var cfgErr *ConfigurationError
		test.That(t, errors.As(err, &cfgErr), test.ShouldBeTrue)
		test.That(t, cfgErr.Attempts, test.ShouldEqual, 1)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}

func TestFailedRangeWriteInvalidatesSensitivity(t *testing.T) {
	chip := newFakeChip()
	mpu, _ := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange500DPS, AccelRange4G), test.ShouldBeNil)

	chip.failWrites[regAccelConfig] = -1
	err := mpu.SetAccelConfig(ctx, AccelRange16G)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, mpu.Scale().AccelLSBPerG, test.ShouldEqual, 0)
	test.That(t, mpu.Scale().GyroLSBPerDPS, test.ShouldEqual, 65.5)
	test.That(t, mpu.SensorConfig().AccelRange, test.ShouldEqual, AccelRange4G)
	test.That(t, mpu.State(), test.ShouldEqual, StateUninitialized)

	_, err = mpu.Fetch(ctx)
	test.That(t, errors.Is(err, ErrNotConfigured), test.ShouldBeTrue)

	// A later successful write brings the constant back.
	delete(chip.failWrites, regAccelConfig)
	test.That(t, mpu.Begin(ctx, GyroRange500DPS, AccelRange16G), test.ShouldBeNil)
	test.That(t, mpu.Scale().AccelLSBPerG, test.ShouldEqual, 2048)
}

func TestFetchBeforeBegin(t *testing.T) {
	mpu, _ := newTestDriver(t, newFakeChip(), fastConfig())
	_, err := mpu.Fetch(context.Background())
	test.That(t, errors.Is(err, ErrNotConfigured), test.ShouldBeTrue)
	test.That(t, errors.Is(mpu.Poll(context.Background()), ErrNotConfigured), test.ShouldBeTrue)
	test.That(t, errors.Is(mpu.Calibrate(context.Background(), true, false), ErrNotConfigured), test.ShouldBeTrue)
}

func TestFetchErrorKeepsState(t *testing.T) {
	chip := newFakeChip()
	chip.accel = tiltedGravity(10, 0)
	mpu, _ := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange250DPS, AccelRange2G), test.ShouldBeNil)
	test.That(t, mpu.FetchAndUpdate(ctx, 10), test.ShouldBeNil)
	before := mpu.Angles()
	sampleBefore, _ := mpu.Sample()

	chip.failReads = 1
	chip.accel = tiltedGravity(-40, 0)
	err := mpu.FetchAndUpdate(ctx, 20)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, buses.IsBusError(err), test.ShouldBeTrue)
	test.That(t, mpu.Angles(), test.ShouldResemble, before)
	sampleAfter, _ := mpu.Sample()
	test.That(t, sampleAfter, test.ShouldResemble, sampleBefore)

	test.That(t, mpu.FetchAndUpdate(ctx, 30), test.ShouldBeNil)
	test.That(t, mpu.State(), test.ShouldEqual, StateRunning)
}

func TestMounting(t *testing.T) {
	chip := newFakeChip()
	chip.accel = r3.Vector{X: 0.25, Y: -0.5, Z: -1}
	mpu, _ := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange250DPS, AccelRange2G), test.ShouldBeNil)

	normal, err := mpu.Fetch(ctx)
	test.That(t, err, test.ShouldBeNil)
	mpu.SetMounting(true)
	flipped, err := mpu.Fetch(ctx)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, flipped.Accel.Z, test.ShouldAlmostEqual, -normal.Accel.Z)
	test.That(t, flipped.Accel.Z, test.ShouldAlmostEqual, 1)
	test.That(t, flipped.Accel.X, test.ShouldEqual, normal.Accel.X)
	test.That(t, flipped.Accel.Y, test.ShouldEqual, normal.Accel.Y)
	test.That(t, flipped.Gyro, test.ShouldResemble, normal.Gyro)
}

func TestFilterCoefficientSetters(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	mpu, err := NewWithClock(newFakeChip().bus(), fastConfig(), logger, clock.NewMock())
	test.That(t, err, test.ShouldBeNil)

	mpu.SetFilterCoefficient(0.9)
	test.That(t, mpu.FilterCoefficient(), test.ShouldEqual, 0.9)
	mpu.SetAccelCoefficient(0.25)
	test.That(t, mpu.FilterCoefficient(), test.ShouldEqual, 0.75)

	mpu.SetFilterCoefficient(3)
	test.That(t, mpu.FilterCoefficient(), test.ShouldEqual, 0.98)
	test.That(t, logs.FilterMessage("filter coefficient out of range, using default").Len(), test.ShouldEqual, 1)
}

func TestSleep(t *testing.T) {
	chip := newFakeChip()
	mpu, _ := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange250DPS, AccelRange2G), test.ShouldBeNil)

	test.That(t, mpu.Sleep(ctx), test.ShouldBeNil)
	test.That(t, chip.writes[len(chip.writes)-1], test.ShouldResemble, registerWrite{regPowerManagement1, 1 << 6})
	test.That(t, mpu.State(), test.ShouldEqual, StateUninitialized)
}

func TestNowMs(t *testing.T) {
	mpu, clk := newTestDriver(t, newFakeChip(), fastConfig())
	test.That(t, mpu.NowMs(), test.ShouldEqual, uint64(0))
	clk.Add(1500 * time.Millisecond)
	test.That(t, mpu.NowMs(), test.ShouldEqual, uint64(1500))
}

func TestEndToEndTilt(t *testing.T) {
	chip := newFakeChip()
	mpu, clk := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange250DPS, AccelRange2G), test.ShouldBeNil)

	// Tilt after seeding so the filter has to pull the estimate over.
	const pitch = -20.0
	chip.accel = tiltedGravity(12, pitch)
	roll := control.AccelTilt(chip.accel).Roll
	i := 0
	chip.noise = func() (r3.Vector, spatialmath.AngularVelocity) {
		i++
		sign := float64(1 - 2*(i%2))
		return r3.Vector{}, spatialmath.AngularVelocity{X: 0.3 * sign, Y: -0.2 * sign, Z: 0.1 * sign}
	}

	for tick := 0; tick < 100; tick++ {
		clk.Add(10 * time.Millisecond)
		test.That(t, mpu.Poll(ctx), test.ShouldBeNil)
	}
	test.That(t, mpu.State(), test.ShouldEqual, StateRunning)
	test.That(t, mpu.AngleAcc().Pitch, test.ShouldAlmostEqual, pitch, 0.05)
	test.That(t, mpu.AngleAcc().Roll, test.ShouldAlmostEqual, roll, 0.05)

	// The seed starts 20 degrees off and 100 steps at 0.98 leave 0.98^100 of it.
	residual := math.Abs(pitch) * math.Pow(0.98, 100)
	test.That(t, mpu.Pitch(), test.ShouldAlmostEqual, pitch, residual+0.1)
	test.That(t, mpu.Roll(), test.ShouldAlmostEqual, roll, math.Abs(roll)*math.Pow(0.98, 100)+0.1)
	test.That(t, math.Abs(mpu.YawDrifted()), test.ShouldBeLessThan, 0.1)
}

func TestEndToEndSteadyTilt(t *testing.T) {
	chip := newFakeChip()
	const pitch = 33.0
	chip.accel = tiltedGravity(0, pitch)
	i := 0
	chip.noise = func() (r3.Vector, spatialmath.AngularVelocity) {
		i++
		return r3.Vector{}, spatialmath.AngularVelocity{Y: 0.5 * math.Sin(float64(i))}
	}
	mpu, clk := newTestDriver(t, chip, fastConfig())
	ctx := context.Background()
	test.That(t, mpu.Begin(ctx, GyroRange250DPS, AccelRange2G), test.ShouldBeNil)

	for tick := 0; tick < 100; tick++ {
		clk.Add(10 * time.Millisecond)
		test.That(t, mpu.FetchAndUpdate(ctx, mpu.NowMs()), test.ShouldBeNil)
	}
	test.That(t, mpu.Pitch(), test.ShouldAlmostEqual, pitch, 2)
}
