// Package coerce holds the numeric and string conversions shared by both
// script VMs. Entry points that differ between the VMs (legacy AVM1 quirks,
// strict AVM2 rules) are separate functions; the VM packages choose.
package coerce

import (
	"math"
	"strconv"
	"strings"
)

const twoTo32 = 4294967296.0

// ---------------------------------------------------------------------------
// Integer conversions
// ---------------------------------------------------------------------------

// ToInteger truncates toward zero. NaN becomes 0; infinities are kept.
func ToInteger(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if math.IsInf(f, 0) {
		return f
	}
	return math.Trunc(f)
}

// ToUint32 wraps f modulo 2^32. NaN and infinities become 0.
func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), twoTo32)
	if f < 0 {
		f += twoTo32
	}
	return uint32(f)
}

// ToInt32 wraps f into the signed 32-bit range. NaN and infinities become 0.
func ToInt32(f float64) int32 {
	return int32(ToUint32(f))
}

// ToUint16 wraps f modulo 2^16.
func ToUint16(f float64) uint16 {
	return uint16(ToUint32(f))
}

// ToInt16 wraps f into the signed 16-bit range.
func ToInt16(f float64) int16 {
	return int16(ToUint32(f))
}

// RoundHalfUp rounds to the nearest integer with ties toward +Infinity,
// which is what Math.round does in both VMs: Math.round(-2.5) == -2.
func RoundHalfUp(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	r := math.Floor(f + 0.5)
	if r == 0 && math.Signbit(f) {
		return math.Copysign(0, -1)
	}
	return r
}

// ---------------------------------------------------------------------------
// Whitespace
// ---------------------------------------------------------------------------

// IsWhitespace reports whether r is skipped around numeric strings.
func IsWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0xa0, 0x2028, 0x2029, 0xfeff:
		return true
	}
	return r >= 0x2000 && r <= 0x200b || r == 0x3000 || r == 0x1680 || r == 0x202f || r == 0x205f
}

// TrimSpace removes leading and trailing whitespace as defined by
// IsWhitespace.
func TrimSpace(s string) string {
	return strings.TrimFunc(s, IsWhitespace)
}

// ---------------------------------------------------------------------------
// String to number
// ---------------------------------------------------------------------------

// DecimalShift computes value * 10^exp by repeated squaring, multiplying or
// dividing exactly as the legacy player does. The two branches are kept
// separate on purpose: dividing by 10^n and multiplying by 10^-n round
// differently.
func DecimalShift(value float64, exp int) float64 {
	base := 10.0
	if exp > 0 {
		for exp > 0 {
			if exp&1 != 0 {
				value *= base
			}
			exp >>= 1
			base *= base
		}
		return value
	}
	n := uint(-int64(exp))
	for n > 0 {
		if n&1 != 0 {
			value /= base
		}
		n >>= 1
		base *= base
	}
	return value
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func trimDigits(s string) string {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[i:]
}

func parseSign(s string) (string, bool) {
	if s != "" {
		switch s[0] {
		case '-':
			return s[1:], true
		case '+':
			return s[1:], false
		}
	}
	return s, false
}

// ParseFloat parses a decimal number the way the legacy player does.
// Leading whitespace is skipped. With strict set the whole string must be
// numeric apart from trailing whitespace (Number()); otherwise trailing
// garbage is ignored (parseFloat()). Strings with no digits yield NaN.
// "Infinity" is not recognised.
func ParseFloat(s string, strict bool) float64 {
	s = strings.TrimLeftFunc(s, IsWhitespace)
	s, negative := parseSign(s)
	afterSign := s

	s = trimDigits(s)
	exp := len(afterSign) - len(s) - 1

	if len(s) > 0 && s[0] == '.' {
		s = trimDigits(s[1:])
	}
	if len(s) == len(afterSign) {
		return math.NaN()
	}

	if len(s) > 0 && (s[0] == 'e' || s[0] == 'E') {
		var expNeg bool
		s, expNeg = parseSign(s[1:])
		var exponent int32
		i := 0
		for i < len(s) && isDigit(s[i]) {
			exponent = exponent*10 + int32(s[i]-'0')
			i++
		}
		s = s[i:]
		if expNeg {
			exponent = -exponent
		}
		exp += int(exponent)
	}

	if strict && strings.TrimRightFunc(s, IsWhitespace) != "" {
		return math.NaN()
	}

	result := 0.0
	for i := 0; i < len(afterSign); i++ {
		c := afterSign[i]
		if isDigit(c) {
			result += DecimalShift(float64(c-'0'), exp)
			exp--
		} else if c != '.' {
			break
		}
	}
	if negative {
		result = -result
	}
	return result
}

// GuessRadix returns 16 for a 0x prefix, 8 for a leading zero followed only
// by octal digits, and 10 otherwise. An optional sign is skipped.
func GuessRadix(s string) int {
	s, _ = parseSign(s)
	if strings.HasPrefix(s, "0") {
		rest := s[1:]
		if strings.HasPrefix(rest, "x") || strings.HasPrefix(rest, "X") {
			return 16
		}
		for i := 0; i < len(rest); i++ {
			if rest[i] < '0' || rest[i] > '7' {
				return 10
			}
		}
		return 8
	}
	return 10
}

// ParseWrappingInt parses digits in the given radix with an optional sign,
// wrapping on overflow like a 32-bit accumulator. ok is false for an empty
// or invalid digit string.
func ParseWrappingInt(s string, radix int) (int32, bool) {
	s, negative := parseSign(s)
	if s == "" {
		return 0, false
	}
	var acc int32
	for i := 0; i < len(s); i++ {
		d, ok := digitValue(s[i])
		if !ok || d >= radix {
			return 0, false
		}
		acc = acc*int32(radix) + int32(d)
	}
	if negative {
		acc = -acc
	}
	return acc, true
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	}
	return 0, false
}

// ParseNumber is the strict ECMAScript string-to-number conversion used by
// AVM2. Surrounding whitespace is ignored, an empty string is 0, and any
// partial numeric prefix ("12px") is NaN.
func ParseNumber(s string) float64 {
	s = TrimSpace(s)
	if s == "" {
		return 0
	}
	body, negative := parseSign(s)
	sign := 1.0
	if negative {
		sign = -1
	}

	if body == "Infinity" {
		return math.Inf(int(sign))
	}
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		v := 0.0
		for i := 2; i < len(body); i++ {
			d, ok := digitValue(body[i])
			if !ok || d >= 16 {
				return math.NaN()
			}
			v = v*16 + float64(d)
		}
		return sign * v
	}
	if !validDecimal(body) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		// Out of range values come back as ±Inf with ErrRange.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return sign * v
		}
		return math.NaN()
	}
	return sign * v
}

// validDecimal accepts digits [. digits] [e [sign] digits] with at least
// one mantissa digit. strconv.ParseFloat alone is too lenient (it takes
// "inf", "nan", hex floats and underscores).
func validDecimal(s string) bool {
	rest := trimDigits(s)
	intDigits := len(s) - len(rest)
	fracDigits := 0
	if rest != "" && rest[0] == '.' {
		after := trimDigits(rest[1:])
		fracDigits = len(rest) - 1 - len(after)
		rest = after
	}
	if intDigits+fracDigits == 0 {
		return false
	}
	if rest != "" && (rest[0] == 'e' || rest[0] == 'E') {
		exp, _ := parseSign(rest[1:])
		after := trimDigits(exp)
		if len(after) == len(exp) {
			return false
		}
		rest = after
	}
	return rest == ""
}

// ParseInt implements the global parseInt: leading whitespace, optional
// sign, optional 0x prefix when radix is 0 or 16, then as many digits as
// are valid. radix 0 means auto-detect. No digits yields NaN.
func ParseInt(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, IsWhitespace)
	s, negative := parseSign(s)
	if radix == 0 || radix == 16 {
		if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			s = s[2:]
			radix = 16
		}
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	v := 0.0
	n := 0
	for ; n < len(s); n++ {
		d, ok := digitValue(s[n])
		if !ok || d >= radix {
			break
		}
		v = v*float64(radix) + float64(d)
	}
	if n == 0 {
		return math.NaN()
	}
	if negative {
		v = -v
	}
	return v
}
