// Package lcd drives an HD44780 compatible character display through a PCF8574 I2C backpack,
// the common 16x2 and 20x4 modules. The controller runs in 4-bit mode: every byte is sent as two
// nibbles on the expander's upper pins, each latched by pulsing the enable pin.
package lcd

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gyroboard/gyroboard/components/board/genericlinux/buses"
	"github.com/gyroboard/gyroboard/logging"
	"github.com/gyroboard/gyroboard/utils"
)

// Delays from the HD44780 datasheet.
const (
	powerOnDelay     = 50 * time.Millisecond
	backlightDelay   = time.Second
	initNibbleDelay  = 4500 * time.Microsecond
	clearDelay       = 2 * time.Millisecond
	enablePulseWidth = time.Microsecond
	commandSettle    = 50 * time.Microsecond
)

// LCD is a character display. It is not safe for concurrent use, but it holds the bus only for
// the duration of each call so other devices can share it.
type LCD struct {
	bus    buses.I2C
	addr   byte
	cols   uint8
	rows   uint8
	oled   bool
	clock  clock.Clock
	logger logging.Logger

	displayFunction byte
	displayControl  byte
	displayMode     byte
	backlight       byte
}

// New returns a display driver using the wall clock for its delays.
func New(bus buses.I2C, cfg Config, logger logging.Logger) (*LCD, error) {
	return NewWithClock(bus, cfg, logger, clock.New())
}

// NewWithClock is New with an explicit time source.
func NewWithClock(bus buses.I2C, cfg Config, logger logging.Logger, clk clock.Clock) (*LCD, error) {
	if bus == nil {
		return nil, errors.New("lcd needs an I2C bus")
	}
	if err := cfg.validateSettings("lcd"); err != nil {
		return nil, err
	}
	l := &LCD{
		bus:       bus,
		addr:      cfg.address(),
		cols:      cfg.columns(),
		rows:      cfg.rows(),
		oled:      cfg.OLED,
		clock:     clk,
		logger:    logger,
		backlight: pinBacklight,
	}
	if cfg.BacklightOff {
		l.backlight = 0
	}

	l.displayFunction = fourBitMode | oneLine | dots5x8
	if l.rows > 1 {
		l.displayFunction |= twoLine
	} else if cfg.LargeFont {
		l.displayFunction |= dots5x10
	}
	return l, nil
}

// Begin runs the 4-bit initialisation sequence, then leaves the display on and cleared with the
// cursor hidden and text running left to right.
func (l *LCD) Begin(ctx context.Context) error {
	if err := utils.SleepContext(ctx, l.clock, powerOnDelay); err != nil {
		return err
	}
	if err := l.withTx(ctx, func(tx *transfer) error {
		return tx.expanderWrite(0)
	}); err != nil {
		return errors.Wrap(err, "lcd not responding")
	}
	if err := utils.SleepContext(ctx, l.clock, backlightDelay); err != nil {
		return err
	}

	err := l.withTx(ctx, func(tx *transfer) error {
		// Three 8-bit function sets bring the controller into a known state from any mode, and the
		// fourth switches it to 4-bit.
		for i := 0; i < 3; i++ {
			if err := tx.writeFourBits(0x03 << 4); err != nil {
				return err
			}
			if err := tx.sleep(initNibbleDelay); err != nil {
				return err
			}
		}
		if err := tx.writeFourBits(0x02 << 4); err != nil {
			return err
		}
		if err := tx.command(cmdFunctionSet | l.displayFunction); err != nil {
			return err
		}

		l.displayControl = displayOn
		if err := tx.command(cmdDisplayControl | l.displayControl); err != nil {
			return err
		}
		if err := l.clear(tx); err != nil {
			return err
		}

		l.displayMode = entryLeft
		if err := tx.command(cmdEntryModeSet | l.displayMode); err != nil {
			return err
		}
		return l.home(tx)
	})
	if err != nil {
		return errors.Wrap(err, "initialising lcd")
	}
	l.logger.Debugw("lcd initialised", "address", l.addr, "columns", l.cols, "rows", l.rows)
	return nil
}

// Columns returns the display width in characters.
func (l *LCD) Columns() int {
	return int(l.cols)
}

// Rows returns the number of display lines.
func (l *LCD) Rows() int {
	return int(l.rows)
}

// Clear blanks the display and returns the cursor to the top left.
func (l *LCD) Clear(ctx context.Context) error {
	return l.withTx(ctx, l.clear)
}

func (l *LCD) clear(tx *transfer) error {
	if err := tx.command(cmdClearDisplay); err != nil {
		return err
	}
	if err := tx.sleep(clearDelay); err != nil {
		return err
	}
	if l.oled {
		return l.setCursor(tx, 0, 0)
	}
	return nil
}

// Home returns the cursor to the top left and undoes any scrolling.
func (l *LCD) Home(ctx context.Context) error {
	return l.withTx(ctx, l.home)
}

func (l *LCD) home(tx *transfer) error {
	if err := tx.command(cmdReturnHome); err != nil {
		return err
	}
	return tx.sleep(clearDelay)
}

// SetCursor moves the cursor to column, row, both zero based. Rows past the bottom of the
// display land on the last row.
func (l *LCD) SetCursor(ctx context.Context, column, row uint8) error {
	return l.withTx(ctx, func(tx *transfer) error {
		return l.setCursor(tx, column, row)
	})
}

func (l *LCD) setCursor(tx *transfer, column, row uint8) error {
	if row >= l.rows {
		row = l.rows - 1
	}
	return tx.command(cmdSetDDRAMAddr | (column + rowOffsets[row]))
}

// Print writes s at the cursor. Runes 0 through 7 print the glyphs stored with CreateChar;
// characters the controller ROM does not have are shown as '?'.
func (l *LCD) Print(ctx context.Context, s string) error {
	return l.withTx(ctx, func(tx *transfer) error {
		for _, r := range s {
			if err := tx.send(charCode(r), pinRegisterSelect); err != nil {
				return err
			}
		}
		return nil
	})
}

// PrintLine clears row and writes s there, cut or padded to the display width.
func (l *LCD) PrintLine(ctx context.Context, row uint8, s string) error {
	line := []rune(s)
	if len(line) > int(l.cols) {
		line = line[:l.cols]
	}
	for len(line) < int(l.cols) {
		line = append(line, ' ')
	}
	return l.withTx(ctx, func(tx *transfer) error {
		if err := l.setCursor(tx, 0, row); err != nil {
			return err
		}
		for _, r := range line {
			if err := tx.send(charCode(r), pinRegisterSelect); err != nil {
				return err
			}
		}
		return nil
	})
}

func charCode(r rune) byte {
	switch {
	case r == '°':
		return degreeSign
	case r >= 0 && r < customCharSlots:
		return byte(r)
	case r >= 0x20 && r < 0x7F:
		return byte(r)
	default:
		return '?'
	}
}

// Display turns the display on or off without losing its contents.
func (l *LCD) Display(ctx context.Context, on bool) error {
	return l.setControl(ctx, displayOn, on)
}

// Cursor shows or hides the underline cursor.
func (l *LCD) Cursor(ctx context.Context, on bool) error {
	return l.setControl(ctx, cursorOn, on)
}

// Blink turns the blinking block cursor on or off.
func (l *LCD) Blink(ctx context.Context, on bool) error {
	return l.setControl(ctx, blinkOn, on)
}

func (l *LCD) setControl(ctx context.Context, flag byte, on bool) error {
	l.displayControl = setFlag(l.displayControl, flag, on)
	return l.Command(ctx, cmdDisplayControl|l.displayControl)
}

// ScrollDisplayLeft shifts the whole display one column left.
func (l *LCD) ScrollDisplayLeft(ctx context.Context) error {
	return l.Command(ctx, cmdCursorShift|displayMove|moveLeft)
}

// ScrollDisplayRight shifts the whole display one column right.
func (l *LCD) ScrollDisplayRight(ctx context.Context) error {
	return l.Command(ctx, cmdCursorShift|displayMove|moveRight)
}

// LeftToRight makes text flow left to right from the cursor.
func (l *LCD) LeftToRight(ctx context.Context) error {
	return l.setMode(ctx, entryLeft, true)
}

// RightToLeft makes text flow right to left from the cursor.
func (l *LCD) RightToLeft(ctx context.Context) error {
	return l.setMode(ctx, entryLeft, false)
}

// Autoscroll moves the display instead of the cursor as text is written.
func (l *LCD) Autoscroll(ctx context.Context, on bool) error {
	return l.setMode(ctx, entryShiftIncrement, on)
}

func (l *LCD) setMode(ctx context.Context, flag byte, on bool) error {
	l.displayMode = setFlag(l.displayMode, flag, on)
	return l.Command(ctx, cmdEntryModeSet|l.displayMode)
}

// Backlight switches the backlight.
func (l *LCD) Backlight(ctx context.Context, on bool) error {
	l.backlight = setFlag(l.backlight, pinBacklight, on)
	return l.withTx(ctx, func(tx *transfer) error {
		return tx.expanderWrite(0)
	})
}

// CreateChar stores an 5x8 glyph in CGRAM slot location (0 through 7), printable afterwards as
// that character code with Write or Print.
func (l *LCD) CreateChar(ctx context.Context, location uint8, glyph [8]byte) error {
	if location >= customCharSlots {
		return errors.Errorf("character slot %d out of range", location)
	}
	return l.withTx(ctx, func(tx *transfer) error {
		if err := tx.command(cmdSetCGRAMAddr | location<<3); err != nil {
			return err
		}
		for _, row := range glyph {
			if err := tx.send(row, pinRegisterSelect); err != nil {
				return err
			}
		}
		return nil
	})
}

// Write sends one character code at the cursor without translation.
func (l *LCD) Write(ctx context.Context, code byte) error {
	return l.withTx(ctx, func(tx *transfer) error {
		return tx.send(code, pinRegisterSelect)
	})
}

// Command sends a raw instruction byte.
func (l *LCD) Command(ctx context.Context, value byte) error {
	return l.withTx(ctx, func(tx *transfer) error {
		return tx.command(value)
	})
}

func setFlag(v, flag byte, on bool) byte {
	if on {
		return v | flag
	}
	return v &^ flag
}

// withTx holds the bus for the duration of fn.
func (l *LCD) withTx(ctx context.Context, fn func(tx *transfer) error) (err error) {
	handle, err := l.bus.OpenHandle(l.addr)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()
	return fn(&transfer{ctx: ctx, lcd: l, handle: handle})
}

// transfer writes to the expander through one open handle.
type transfer struct {
	ctx    context.Context
	lcd    *LCD
	handle buses.I2CHandle
}

func (tx *transfer) sleep(d time.Duration) error {
	return utils.SleepContext(tx.ctx, tx.lcd.clock, d)
}

func (tx *transfer) command(value byte) error {
	return tx.send(value, 0)
}

func (tx *transfer) send(value, mode byte) error {
	if err := tx.writeFourBits(value&0xF0 | mode); err != nil {
		return err
	}
	return tx.writeFourBits(value<<4 | mode)
}

func (tx *transfer) writeFourBits(value byte) error {
	if err := tx.expanderWrite(value); err != nil {
		return err
	}
	return tx.pulseEnable(value)
}

func (tx *transfer) pulseEnable(value byte) error {
	if err := tx.expanderWrite(value | pinEnable); err != nil {
		return err
	}
	if err := tx.sleep(enablePulseWidth); err != nil {
		return err
	}
	if err := tx.expanderWrite(value &^ pinEnable); err != nil {
		return err
	}
	return tx.sleep(commandSettle)
}

func (tx *transfer) expanderWrite(value byte) error {
	return tx.handle.Write(tx.ctx, []byte{value | tx.lcd.backlight})
}
