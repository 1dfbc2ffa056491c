package lcd

import (
	"github.com/pkg/errors"

	"github.com/gyroboard/gyroboard/utils"
)

const (
	defaultAddress = 0x27
	defaultColumns = 16
	defaultRows    = 2
	maxColumns     = 40
)

// Config describes a character display behind a PCF8574 I2C backpack.
type Config struct {
	I2CBus  string `json:"i2c_bus"`
	I2CAddr int    `json:"i2c_addr,omitempty"`
	Columns int    `json:"columns,omitempty"`
	Rows    int    `json:"rows,omitempty"`

	// LargeFont selects 5x10 dot characters, which the controller only offers on one-row displays.
	LargeFont bool `json:"large_font,omitempty"`

	// OLED modules need the cursor set explicitly after a clear.
	OLED bool `json:"oled,omitempty"`

	BacklightOff bool `json:"backlight_off,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.I2CBus == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	return cfg.validateSettings(path)
}

func (cfg *Config) validateSettings(path string) error {
	if cfg.I2CAddr < 0 || cfg.I2CAddr > 0x7F {
		return utils.NewConfigValidationError(path, errors.Errorf("i2c_addr 0x%x is not a 7-bit address", cfg.I2CAddr))
	}
	if cfg.Columns < 0 || cfg.Columns > maxColumns {
		return utils.NewConfigValidationError(path, errors.Errorf("columns must be between 1 and %d", maxColumns))
	}
	if cfg.Rows < 0 || cfg.Rows > len(rowOffsets) {
		return utils.NewConfigValidationError(path, errors.Errorf("rows must be between 1 and %d", len(rowOffsets)))
	}
	return nil
}

// ConfigFromAttributes decodes an attribute map into a Config.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := utils.TransformAttributeMapToStruct(&cfg, attributes); err != nil {
		return nil, errors.Wrap(err, "decoding lcd attributes")
	}
	return &cfg, nil
}

func (cfg *Config) address() byte {
	if cfg.I2CAddr == 0 {
		return defaultAddress
	}
	return byte(cfg.I2CAddr)
}

func (cfg *Config) columns() uint8 {
	if cfg.Columns == 0 {
		return defaultColumns
	}
	return uint8(cfg.Columns)
}

func (cfg *Config) rows() uint8 {
	if cfg.Rows == 0 {
		return defaultRows
	}
	return uint8(cfg.Rows)
}
