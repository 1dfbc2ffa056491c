package mpu6050

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/gyroboard/gyroboard/control"
	"github.com/gyroboard/gyroboard/utils"
)

const (
	defaultConfigRetries         = 3
	defaultRetryIntervalMs       = 10
	defaultCalibrationSamples    = 500
	defaultCalibrationIntervalMs = 1

	maxFilterBandwidth = 7
)

// Config is used to configure the chip and the driver around it.
type Config struct {
	I2CBus                 string `json:"i2c_bus"`
	UseAlternateI2CAddress bool   `json:"use_alt_i2c_address,omitempty"`

	GyroRange         int  `json:"gyro_range,omitempty"`
	AccelRange        int  `json:"accel_range,omitempty"`
	SampleRateDivider int  `json:"sample_rate_divider,omitempty"`
	FilterBandwidth   int  `json:"filter_bandwidth,omitempty"`
	UpsideDown        bool `json:"upside_down,omitempty"`

	FilterCoefficient *float64 `json:"filter_coefficient,omitempty"`

	// Zero values fall back to the defaults; the intervals are pointers so 0 ms can be asked for.
	ConfigRetries         int  `json:"config_retries,omitempty"`
	RetryIntervalMs       *int `json:"retry_interval_ms,omitempty"`
	CalibrationSamples    int  `json:"calibration_samples,omitempty"`
	CalibrationIntervalMs *int `json:"calibration_interval_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.I2CBus == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	return cfg.validateSettings(path)
}

// validateSettings checks everything but the bus name, which callers handing in a bus directly
// do not need.
func (cfg *Config) validateSettings(path string) error {
	if cfg.GyroRange < 0 || cfg.GyroRange > int(GyroRange2000DPS) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("gyro_range must be between 0 and %d, got %d", GyroRange2000DPS, cfg.GyroRange))
	}
	if cfg.AccelRange < 0 || cfg.AccelRange > int(AccelRange16G) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("accel_range must be between 0 and %d, got %d", AccelRange16G, cfg.AccelRange))
	}
	if cfg.SampleRateDivider < 0 || cfg.SampleRateDivider > math.MaxUint8 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("sample_rate_divider must be between 0 and 255, got %d", cfg.SampleRateDivider))
	}
	if cfg.FilterBandwidth < 0 || cfg.FilterBandwidth > maxFilterBandwidth {
		return utils.NewConfigValidationError(path,
			errors.Errorf("filter_bandwidth must be between 0 and %d, got %d", maxFilterBandwidth, cfg.FilterBandwidth))
	}
	if c := cfg.FilterCoefficient; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("filter_coefficient must be between 0 and 1, got %v", *c))
	}
	if cfg.ConfigRetries < 0 {
		return utils.NewConfigValidationError(path, errors.New("config_retries cannot be negative"))
	}
	if cfg.CalibrationSamples < 0 {
		return utils.NewConfigValidationError(path, errors.New("calibration_samples cannot be negative"))
	}
	if cfg.RetryIntervalMs != nil && *cfg.RetryIntervalMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("retry_interval_ms cannot be negative"))
	}
	if cfg.CalibrationIntervalMs != nil && *cfg.CalibrationIntervalMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("calibration_interval_ms cannot be negative"))
	}
	return nil
}

// ConfigFromAttributes decodes an attribute map, as read from a JSON config file, into a Config.
// Unknown keys are an error.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := utils.TransformAttributeMapToStruct(&cfg, attributes); err != nil {
		return nil, errors.Wrap(err, "decoding mpu6050 attributes")
	}
	return &cfg, nil
}

// SensorConfig returns the register configuration described by cfg.
func (cfg *Config) SensorConfig() SensorConfig {
	return SensorConfig{
		GyroRange:         GyroRange(cfg.GyroRange),
		AccelRange:        AccelRange(cfg.AccelRange),
		SampleRateDivider: uint8(cfg.SampleRateDivider),
		FilterBandwidth:   uint8(cfg.FilterBandwidth),
	}
}

func (cfg *Config) address() byte {
	if cfg.UseAlternateI2CAddress {
		return alternateAddress
	}
	return defaultAddress
}

func (cfg *Config) coefficient() float64 {
	if cfg.FilterCoefficient == nil {
		return control.DefaultComplementaryCoefficient
	}
	return *cfg.FilterCoefficient
}

func (cfg *Config) configRetries() int {
	if cfg.ConfigRetries == 0 {
		return defaultConfigRetries
	}
	return cfg.ConfigRetries
}

func (cfg *Config) retryInterval() time.Duration {
	return msOrDefault(cfg.RetryIntervalMs, defaultRetryIntervalMs)
}

func (cfg *Config) calibrationSamples() int {
	if cfg.CalibrationSamples == 0 {
		return defaultCalibrationSamples
	}
	return cfg.CalibrationSamples
}

func (cfg *Config) calibrationInterval() time.Duration {
	return msOrDefault(cfg.CalibrationIntervalMs, defaultCalibrationIntervalMs)
}

func msOrDefault(ms *int, def int) time.Duration {
	if ms == nil {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(*ms) * time.Millisecond
}
