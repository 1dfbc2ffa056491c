package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/physic"

	"github.com/gyroboard/gyroboard/components/board/genericlinux/buses"
	"github.com/gyroboard/gyroboard/components/display/lcd"
	"github.com/gyroboard/gyroboard/components/movementsensor"
	"github.com/gyroboard/gyroboard/components/movementsensor/mpu6050"
	"github.com/gyroboard/gyroboard/logging"
)

// options is everything a session needs, merged from the config file and the flags.
type options struct {
	imu      mpu6050.Config
	display  *lcd.Config
	busSpeed physic.Frequency

	calibrateGyro  bool
	calibrateAccel bool

	interval       time.Duration
	reportInterval time.Duration
	errorWindow    int
	errorThreshold int
}

// fileConfig is the layout of the --config file.
type fileConfig struct {
	IMU     map[string]interface{} `json:"imu"`
	Display map[string]interface{} `json:"display"`
}

func loadConfigFile(path string) (*mpu6050.Config, *lcd.Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading config file")
	}
	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing config file %q", path)
	}

	imuCfg := &mpu6050.Config{}
	if raw.IMU != nil {
		if imuCfg, err = mpu6050.ConfigFromAttributes(raw.IMU); err != nil {
			return nil, nil, err
		}
	}
	var displayCfg *lcd.Config
	if raw.Display != nil {
		if displayCfg, err = lcd.ConfigFromAttributes(raw.Display); err != nil {
			return nil, nil, err
		}
	}
	return imuCfg, displayCfg, nil
}

// optionsFromContext reads the config file, if any, and lets explicitly set flags override it.
func optionsFromContext(c *cli.Context) (*options, error) {
	opts := &options{
		interval:       c.Duration(flagInterval),
		reportInterval: c.Duration(flagReportInterval),
		errorWindow:    c.Int(flagErrorWindow),
		errorThreshold: c.Int(flagErrorThreshold),
		busSpeed:       physic.Frequency(c.Int(flagBusSpeedKHz)) * physic.KiloHertz,
		calibrateGyro:  c.Bool(flagCalibrate),
		calibrateAccel: c.Bool(flagCalibrateAccel),
	}

	if path := c.String(flagConfig); path != "" {
		imuCfg, displayCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		opts.imu = *imuCfg
		opts.display = displayCfg
	}

	if c.IsSet(flagBus) || opts.imu.I2CBus == "" {
		opts.imu.I2CBus = c.String(flagBus)
	}
	if c.IsSet(flagAltAddress) {
		opts.imu.UseAlternateI2CAddress = c.Bool(flagAltAddress)
	}
	if c.IsSet(flagGyroRange) {
		opts.imu.GyroRange = c.Int(flagGyroRange)
	}
	if c.IsSet(flagAccelRange) {
		opts.imu.AccelRange = c.Int(flagAccelRange)
	}
	if c.IsSet(flagUpsideDown) {
		opts.imu.UpsideDown = c.Bool(flagUpsideDown)
	}
	if c.IsSet(flagFilterCoefficient) {
		coefficient := c.Float64(flagFilterCoefficient)
		opts.imu.FilterCoefficient = &coefficient
	}
	if c.Bool(flagLCD) && opts.display == nil {
		opts.display = &lcd.Config{}
	}
	if opts.display != nil {
		if c.IsSet(flagLCDAddress) || opts.display.I2CAddr == 0 {
			opts.display.I2CAddr = c.Int(flagLCDAddress)
		}
		if opts.display.I2CBus == "" {
			opts.display.I2CBus = opts.imu.I2CBus
		}
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (opts *options) validate() error {
	if err := opts.imu.Validate("imu"); err != nil {
		return err
	}
	if opts.display != nil {
		if err := opts.display.Validate("display"); err != nil {
			return err
		}
	}
	if opts.interval <= 0 {
		return errors.Errorf("--%s must be positive", flagInterval)
	}
	if opts.errorWindow < 1 || opts.errorThreshold < 1 || opts.errorThreshold > opts.errorWindow {
		return errors.Errorf("--%s must be between 1 and --%s", flagErrorThreshold, flagErrorWindow)
	}
	return nil
}

// i2cBus is a bus the session owns and closes.
type i2cBus interface {
	buses.I2C
	Close() error
}

type busOpener func(name string, speed physic.Frequency) (i2cBus, error)

func openPeriphBus(name string, speed physic.Frequency) (i2cBus, error) {
	bus, err := buses.NewI2cBus(name, speed)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

func newIMU(bus buses.I2C, opts *options, logger logging.Logger, clk clock.Clock) (*mpu6050.MPU6050, error) {
	return mpu6050.NewWithClock(bus, opts.imu, logger.Sublogger("mpu6050"), clk)
}

// session is an identified, configured sensor plus the optional display.
type session struct {
	opts    *options
	logger  logging.Logger
	clock   clock.Clock
	buses   []i2cBus
	imu     *mpu6050.MPU6050
	display *lcd.LCD
}

func newSession(
	ctx context.Context,
	opts *options,
	open busOpener,
	logger logging.Logger,
	clk clock.Clock,
) (_ *session, err error) {
	s := &session{opts: opts, logger: logger, clock: clk}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, s.closeBuses())
		}
	}()

	bus, err := open(opts.imu.I2CBus, opts.busSpeed)
	if err != nil {
		return nil, err
	}
	s.buses = append(s.buses, bus)

	if s.imu, err = newIMU(bus, opts, logger, clk); err != nil {
		return nil, err
	}
	if err := s.imu.Identify(ctx); err != nil {
		return nil, err
	}
	sensorConfig := opts.imu.SensorConfig()
	if err := s.imu.Begin(ctx, sensorConfig.GyroRange, sensorConfig.AccelRange); err != nil {
		return nil, err
	}

	if opts.display != nil {
		displayBus := buses.I2C(bus)
		if opts.display.I2CBus != opts.imu.I2CBus {
			other, err := open(opts.display.I2CBus, opts.busSpeed)
			if err != nil {
				return nil, err
			}
			s.buses = append(s.buses, other)
			displayBus = other
		}
		if s.display, err = lcd.NewWithClock(displayBus, *opts.display, logger.Sublogger("lcd"), clk); err != nil {
			return nil, err
		}
		if err := s.display.Begin(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// poll reads the sensor every interval until ctx is done or too many reads fail. Readings are
// written to out every report interval. A positive maxTicks stops after that many reads.
func (s *session) poll(ctx context.Context, out io.Writer, maxTicks int) error {
	ticker := s.clock.Ticker(s.opts.interval)
	defer ticker.Stop()

	reportEvery := int(s.opts.reportInterval / s.opts.interval)
	if reportEvery < 1 {
		reportEvery = 1
	}
	lastError := movementsensor.NewLastError(s.opts.errorWindow, s.opts.errorThreshold)

	for tick := 1; maxTicks <= 0 || tick <= maxTicks; tick++ {
		if !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
			return nil
		}

		err := s.imu.Poll(ctx)
		lastError.Set(err)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warnw("failed to read sensor", "error", err)
			if err := lastError.Get(); err != nil {
				return errors.Wrap(err, "too many failed sensor reads")
			}
			continue
		}

		if tick%reportEvery != 0 {
			continue
		}
		pitchLine, tempLine := formatLines(s.imu)
		s.logger.Debugw("orientation", "angles", s.imu.Angles().String(), "temperature", s.imu.TemperatureC())
		fmt.Fprintf(out, "%s  %s\n", pitchLine, tempLine)
		if s.display != nil {
			if err := s.showLines(ctx, pitchLine, tempLine); err != nil {
				s.logger.Warnw("failed to update display", "error", err)
			}
		}
	}
	return nil
}

func (s *session) showLines(ctx context.Context, lines ...string) error {
	for row, line := range lines {
		if row >= s.display.Rows() {
			break
		}
		if err := s.display.PrintLine(ctx, uint8(row), line); err != nil {
			return err
		}
	}
	return nil
}

// formatLines renders the two display lines, e.g. "P:+12.3 R:-4.5" and "T:24.1C Y:+1.0".
func formatLines(imu *mpu6050.MPU6050) (string, string) {
	return fmt.Sprintf("P:%+.1f R:%+.1f", tenths(imu.Pitch()), tenths(imu.Roll())),
		fmt.Sprintf("T:%.1fC Y:%+.1f", imu.TemperatureC(), tenths(imu.YawDrifted()))
}

// tenths snaps values that would print as -0.0 to zero.
func tenths(v float64) float64 {
	if math.Abs(v) < 0.05 {
		return 0
	}
	return v
}

// offsetsTable renders calibration results, one row per sensor.
func offsetsTable(offsets mpu6050.Offsets, withAccel bool) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Sensor", "X", "Y", "Z", "Unit"})
	t.AppendRow(offsetRow("gyro", offsets.Gyro, "°/s"))
	if withAccel {
		t.AppendRow(offsetRow("accel", offsets.Accel, "g"))
	}
	return t.Render()
}

func offsetRow(name string, v r3.Vector, unit string) table.Row {
	return table.Row{name, fmt.Sprintf("%+.4f", v.X), fmt.Sprintf("%+.4f", v.Y), fmt.Sprintf("%+.4f", v.Z), unit}
}

// Close puts the sensor to sleep, blanks the display and releases the buses.
func (s *session) Close(ctx context.Context) error {
	var err error
	if s.display != nil {
		err = multierr.Combine(err, s.display.Clear(ctx), s.display.Backlight(ctx, false))
	}
	if s.imu != nil {
		err = multierr.Combine(err, s.imu.Sleep(ctx))
	}
	return multierr.Combine(err, s.closeBuses())
}

func (s *session) closeBuses() error {
	var err error
	for _, bus := range s.buses {
		err = multierr.Combine(err, bus.Close())
	}
	s.buses = nil
	return err
}
