// Package main is the gyroboard command: it reads orientation from an MPU-6050 and shows it in
// the log and, optionally, on a character LCD sharing the same I2C bus.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/gyroboard/gyroboard/logging"
)

const (
	// Flags.
	flagConfig            = "config"
	flagDebug             = "debug"
	flagLogFile           = "log-file"
	flagBus               = "bus"
	flagBusSpeedKHz       = "bus-speed-khz"
	flagAltAddress        = "alt-address"
	flagGyroRange         = "gyro-range"
	flagAccelRange        = "accel-range"
	flagUpsideDown        = "upside-down"
	flagFilterCoefficient = "filter-coefficient"
	flagCalibrate         = "calibrate"
	flagCalibrateAccel    = "calibrate-accel"
	flagInterval          = "interval"
	flagReportInterval    = "report-interval"
	flagErrorWindow       = "error-window"
	flagErrorThreshold    = "error-threshold"
	flagLCD               = "lcd"
	flagLCDAddress        = "lcd-address"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger := logging.Global()
		logger.Error(err)
		//nolint:errcheck
		logger.Sync()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	logger := logging.NewLogger("gyroboard")
	var logFile io.Closer

	return &cli.App{
		Name:  "gyroboard",
		Usage: "read tilt and heading from an MPU-6050",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load device configuration from JSON `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write JSON logs to `FILE`, rotated as it grows",
			},
			&cli.StringFlag{
				Name:  flagBus,
				Value: "1",
				Usage: "I2C bus name or number",
			},
			&cli.IntFlag{
				Name:  flagBusSpeedKHz,
				Usage: "I2C clock in kHz, 0 leaves the bus default",
			},
			&cli.BoolFlag{
				Name:  flagAltAddress,
				Usage: "the MPU-6050 has AD0 pulled high (address 0x69)",
			},
			&cli.IntFlag{
				Name:  flagGyroRange,
				Usage: "gyro full scale: 0 ±250°/s, 1 ±500°/s, 2 ±1000°/s, 3 ±2000°/s",
			},
			&cli.IntFlag{
				Name:  flagAccelRange,
				Usage: "accelerometer full scale: 0 ±2g, 1 ±4g, 2 ±8g, 3 ±16g",
			},
			&cli.BoolFlag{
				Name:  flagUpsideDown,
				Usage: "the sensor is mounted upside down",
			},
			&cli.Float64Flag{
				Name:  flagFilterCoefficient,
				Value: 0.98,
				Usage: "complementary filter gyro weight in [0, 1]",
			},
			&cli.DurationFlag{
				Name:  flagInterval,
				Value: 10 * time.Millisecond,
				Usage: "time between sensor reads",
			},
			&cli.DurationFlag{
				Name:  flagReportInterval,
				Value: 500 * time.Millisecond,
				Usage: "time between printed readings",
			},
			&cli.IntFlag{
				Name:  flagErrorWindow,
				Value: 20,
				Usage: "number of recent reads considered when deciding to give up",
			},
			&cli.IntFlag{
				Name:  flagErrorThreshold,
				Value: 10,
				Usage: "failed reads within the window that stop the command",
			},
			&cli.BoolFlag{
				Name:  flagLCD,
				Usage: "show readings on a PCF8574 character LCD on the same bus",
			},
			&cli.IntFlag{
				Name:  flagLCDAddress,
				Value: 0x27,
				Usage: "I2C address of the LCD backpack",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.String(flagLogFile) != "":
				logger, logFile = logging.NewFileLogger("gyroboard", logging.FileConfig{
					Path:       c.String(flagLogFile),
					MaxSizeMB:  logFileMaxSizeMB,
					MaxBackups: logFileMaxBackups,
					Debug:      c.Bool(flagDebug),
				})
			case c.Bool(flagDebug):
				logger = logging.NewDebugLogger("gyroboard")
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			//nolint:errcheck
			logger.Sync()
			return logFile.Close()
		},
		Action: func(c *cli.Context) error {
			return runCommand(c, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "configure the sensor and report orientation until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagCalibrate,
						Usage: "calibrate the gyro at startup; keep the sensor still",
					},
					&cli.BoolFlag{
						Name:  flagCalibrateAccel,
						Usage: "also zero the accelerometer; the sensor must be level",
					},
				},
				Action: func(c *cli.Context) error {
					return runCommand(c, logger)
				},
			},
			{
				Name:  "calibrate",
				Usage: "measure and print the sensor offsets",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagCalibrateAccel,
						Usage: "also measure accelerometer offsets; the sensor must be level",
					},
				},
				Action: func(c *cli.Context) error {
					return calibrateCommand(c, logger)
				},
			},
			{
				Name:  "identify",
				Usage: "check that an MPU-6050 answers on the bus",
				Action: func(c *cli.Context) error {
					return identifyCommand(c, logger)
				},
			},
		},
	}
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runCommand(c *cli.Context, logger logging.Logger) (err error) {
	opts, err := optionsFromContext(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	s, err := newSession(ctx, opts, openPeriphBus, logger, clock.New())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close(context.Background()))
	}()

	if opts.calibrateGyro || opts.calibrateAccel {
		logger.Info("calibrating, keep the sensor still")
		if err := s.imu.Calibrate(ctx, opts.calibrateGyro, opts.calibrateAccel); err != nil {
			return err
		}
	}
	return s.poll(ctx, c.App.Writer, 0)
}

func calibrateCommand(c *cli.Context, logger logging.Logger) (err error) {
	opts, err := optionsFromContext(c)
	if err != nil {
		return err
	}
	opts.display = nil
	ctx, stop := signalContext(c)
	defer stop()

	s, err := newSession(ctx, opts, openPeriphBus, logger, clock.New())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close(context.Background()))
	}()

	if err := s.imu.Calibrate(logging.EnableDebugMode(ctx, "calibrate"), true, opts.calibrateAccel); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, offsetsTable(s.imu.Offsets(), opts.calibrateAccel))
	return nil
}

func identifyCommand(c *cli.Context, logger logging.Logger) (err error) {
	opts, err := optionsFromContext(c)
	if err != nil {
		return err
	}
	bus, err := openPeriphBus(opts.imu.I2CBus, opts.busSpeed)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, bus.Close())
	}()

	imu, err := newIMU(bus, opts, logger, clock.New())
	if err != nil {
		return err
	}
	if err := imu.Identify(c.Context); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "MPU-6050 found at 0x%02x on bus %s\n", imu.Address(), opts.imu.I2CBus)
	return nil
}
