package lcd

// HD44780 instructions.
const (
	cmdClearDisplay   = 0x01
	cmdReturnHome     = 0x02
	cmdEntryModeSet   = 0x04
	cmdDisplayControl = 0x08
	cmdCursorShift    = 0x10
	cmdFunctionSet    = 0x20
	cmdSetCGRAMAddr   = 0x40
	cmdSetDDRAMAddr   = 0x80
)

// Entry mode flags.
const (
	entryLeft           = 0x02
	entryShiftIncrement = 0x01
)

// Display control flags.
const (
	displayOn = 0x04
	cursorOn  = 0x02
	blinkOn   = 0x01
)

// Cursor shift flags.
const (
	displayMove = 0x08
	moveRight   = 0x04
	moveLeft    = 0x00
)

// Function set flags. The backpack only wires four data lines.
const (
	fourBitMode = 0x00
	twoLine     = 0x08
	oneLine     = 0x00
	dots5x10    = 0x04
	dots5x8     = 0x00
)

// PCF8574 pins: P0 RS, P1 RW, P2 EN, P3 backlight, P4-P7 D4-D7.
const (
	pinRegisterSelect = 0x01
	pinEnable         = 0x04
	pinBacklight      = 0x08
)

// DDRAM address of the first column of each row.
var rowOffsets = [...]byte{0x00, 0x40, 0x14, 0x54}

const degreeSign = 0xDF

// CGRAM holds this many user glyphs, at character codes 0 through 7.
const customCharSlots = 8
