package avm1

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// Action codes. Codes from 0x80 up carry a u16 length and a payload.
const (
	ActionEnd           byte = 0x00
	ActionNextFrame     byte = 0x04
	ActionPrevFrame     byte = 0x05
	ActionPlay          byte = 0x06
	ActionStop          byte = 0x07
	ActionToggleQuality byte = 0x08
	ActionStopSounds    byte = 0x09
	ActionAdd           byte = 0x0A
	ActionSubtract      byte = 0x0B
	ActionMultiply      byte = 0x0C
	ActionDivide        byte = 0x0D
	ActionEquals        byte = 0x0E
	ActionLess          byte = 0x0F
	ActionAnd           byte = 0x10
	ActionOr            byte = 0x11
	ActionNot           byte = 0x12
	ActionStringEquals  byte = 0x13
	ActionStringLength  byte = 0x14
	ActionStringExtract byte = 0x15
	ActionPop           byte = 0x17
	ActionToInteger     byte = 0x18
	ActionGetVariable   byte = 0x1C
	ActionSetVariable   byte = 0x1D
	ActionSetTarget2    byte = 0x20
	ActionStringAdd     byte = 0x21
	ActionGetProperty   byte = 0x22
	ActionSetProperty   byte = 0x23
	ActionCloneSprite   byte = 0x24
	ActionRemoveSprite  byte = 0x25
	ActionTrace         byte = 0x26
	ActionStartDrag     byte = 0x27
	ActionEndDrag       byte = 0x28
	ActionStringLess    byte = 0x29
	ActionThrow         byte = 0x2A
	ActionCastOp        byte = 0x2B
	ActionImplementsOp  byte = 0x2C
	ActionRandomNumber  byte = 0x30
	ActionMBStringLen   byte = 0x31
	ActionCharToAscii   byte = 0x32
	ActionAsciiToChar   byte = 0x33
	ActionGetTime       byte = 0x34
	ActionMBStringExt   byte = 0x35
	ActionMBCharToAscii byte = 0x36
	ActionMBAsciiToChar byte = 0x37
	ActionDelete        byte = 0x3A
	ActionDelete2       byte = 0x3B
	ActionDefineLocal   byte = 0x3C
	ActionCallFunction  byte = 0x3D
	ActionReturn        byte = 0x3E
	ActionModulo        byte = 0x3F
	ActionNewObject     byte = 0x40
	ActionDefineLocal2  byte = 0x41
	ActionInitArray     byte = 0x42
	ActionInitObject    byte = 0x43
	ActionTypeOf        byte = 0x44
	ActionTargetPath    byte = 0x45
	ActionEnumerate     byte = 0x46
	ActionAdd2          byte = 0x47
	ActionLess2         byte = 0x48
	ActionEquals2       byte = 0x49
	ActionToNumber      byte = 0x4A
	ActionToString      byte = 0x4B
	ActionPushDuplicate byte = 0x4C
	ActionStackSwap     byte = 0x4D
	ActionGetMember     byte = 0x4E
	ActionSetMember     byte = 0x4F
	ActionIncrement     byte = 0x50
	ActionDecrement     byte = 0x51
	ActionCallMethod    byte = 0x52
	ActionNewMethod     byte = 0x53
	ActionInstanceOf    byte = 0x54
	ActionEnumerate2    byte = 0x55
	ActionBitAnd        byte = 0x60
	ActionBitOr         byte = 0x61
	ActionBitXor        byte = 0x62
	ActionBitLShift     byte = 0x63
	ActionBitRShift     byte = 0x64
	ActionBitURShift    byte = 0x65
	ActionStrictEquals  byte = 0x66
	ActionGreater       byte = 0x67
	ActionStringGreater byte = 0x68
	ActionExtends       byte = 0x69

	ActionGotoFrame       byte = 0x81
	ActionGetURL          byte = 0x83
	ActionStoreRegister   byte = 0x87
	ActionConstantPool    byte = 0x88
	ActionWaitForFrame    byte = 0x8A
	ActionSetTarget       byte = 0x8B
	ActionGoToLabel       byte = 0x8C
	ActionWaitForFrame2   byte = 0x8D
	ActionDefineFunction2 byte = 0x8E
	ActionTry             byte = 0x8F
	ActionWith            byte = 0x94
	ActionPush            byte = 0x96
	ActionJump            byte = 0x99
	ActionGetURL2         byte = 0x9A
	ActionDefineFunction  byte = 0x9B
	ActionIf              byte = 0x9D
	ActionCall            byte = 0x9E
	ActionGotoFrame2      byte = 0x9F
)

// Push operand type tags.
const (
	pushString     = 0
	pushFloat      = 1
	pushNull       = 2
	pushUndefined  = 3
	pushRegister   = 4
	pushBool       = 5
	pushDouble     = 6
	pushInt        = 7
	pushConstant8  = 8
	pushConstant16 = 9
)

// ---------------------------------------------------------------------------
// Text decoding
// ---------------------------------------------------------------------------

// LegacyDecoder returns the decoder for SWF 5 and earlier strings, which
// are stored in the author's system codepage. Unknown names fall back to
// windows-1252.
func LegacyDecoder(codepage string) *encoding.Decoder {
	switch codepage {
	case "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS.NewDecoder()
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder()
	}
	return charmap.Windows1252.NewDecoder()
}

// ---------------------------------------------------------------------------
// actionReader
// ---------------------------------------------------------------------------

// action is one decoded action header. body is the payload of a long
// action and next the offset of the following action.
type action struct {
	op   byte
	pos  int
	body []byte
	next int
}

type actionReader struct {
	data    []byte
	pos     int
	version uint8
	legacy  *encoding.Decoder
}

func (a *Activation) readAction(pc int) (action, error) {
	code := a.code
	if pc >= len(code) {
		return action{op: ActionEnd, pos: pc, next: pc}, nil
	}
	op := code[pc]
	if op < 0x80 {
		return action{op: op, pos: pc, next: pc + 1}, nil
	}
	if pc+3 > len(code) {
		return action{}, fmt.Errorf("%w: truncated header for 0x%02x at %d", ErrInvalidAction, op, pc)
	}
	n := int(binary.LittleEndian.Uint16(code[pc+1:]))
	end := pc + 3 + n
	if end > len(code) {
		return action{}, fmt.Errorf("%w: 0x%02x at %d overruns the code by %d bytes", ErrInvalidAction, op, pc, end-len(code))
	}
	return action{op: op, pos: pc, body: code[pc+3 : end], next: end}, nil
}

func (a *Activation) reader(body []byte) *actionReader {
	return &actionReader{data: body, version: a.version, legacy: a.vm.legacy}
}

func (r *actionReader) truncated(what string) error {
	return fmt.Errorf("%w: truncated %s", ErrInvalidAction, what)
}

func (r *actionReader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, r.truncated("u8")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *actionReader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, r.truncated("u16")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *actionReader) i16() (int16, error) {
	v, err := r.u16()
	return int16(v), err
}

func (r *actionReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, r.truncated("u32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *actionReader) f32() (float32, error) {
	v, err := r.u32()
	return math.Float32frombits(v), err
}

// f64 reads a SWF double, which stores its high word first.
func (r *actionReader) f64() (float64, error) {
	hi, err := r.u32()
	if err != nil {
		return 0, err
	}
	lo, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(hi)<<32 | uint64(lo)), nil
}

// str reads a NUL-terminated string, decoding legacy codepages for SWF 5
// and earlier.
func (r *actionReader) str() (string, error) {
	start := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != 0 {
		r.pos++
	}
	if r.pos >= len(r.data) {
		return "", r.truncated("string")
	}
	raw := r.data[start:r.pos]
	r.pos++
	return r.decode(raw), nil
}

func (r *actionReader) decode(raw []byte) string {
	if r.version >= 6 || r.legacy == nil {
		if utf8.Valid(raw) {
			return string(raw)
		}
		return string([]rune(string(raw)))
	}
	out, err := r.legacy.Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func (r *actionReader) done() bool { return r.pos >= len(r.data) }
