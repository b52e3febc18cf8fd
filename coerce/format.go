package coerce

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Number to string
// ---------------------------------------------------------------------------

const (
	avm1MaxDecimalPlaces = 15
	// log10(2) as the legacy player has it, less precise than math.Log10(2).
	avm1Log10Of2 = 0.301029995663981
)

// FormatAVM1 converts a number to a string the way the legacy AVM1 player
// does: 15 significant digits, exponent form below 1e-5 and from 1e15 up,
// ties rounded away from zero. The carry bugs of the original algorithm are
// reproduced (-9999999999999996 formats as "-e+16").
func FormatAVM1(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	case n >= -2147483648 && n <= 2147483647 && n == math.Trunc(n):
		return strconv.Itoa(int(n))
	}

	buf := make([]byte, 0, 25)
	negative := n < 0
	if negative {
		n = -n
		buf = append(buf, '-')
	}

	const mantissaBits = 52
	const exponentMask = 0x7ff
	const exponentBias = 1023
	expBase2 := int((math.Float64bits(n)>>mantissaBits)&exponentMask) - exponentBias
	if expBase2 == -exponentBias {
		// Subnormal: scale into the normal range and read the exponent again.
		scaled := n * 1.801439850948198e16 // 2^54
		expBase2 = int((math.Float64bits(scaled)>>mantissaBits)&exponentMask) - exponentBias - 54
	}

	exp := int(math.Round(float64(expBase2) * avm1Log10Of2))
	mantissa := DecimalShift(n, -exp)
	if int32(mantissa) == 0 {
		exp--
		mantissa = DecimalShift(n, -exp)
	}
	if int32(mantissa) >= 10 {
		exp++
		mantissa = DecimalShift(n, -exp)
	}

	digit := func() byte {
		d := int32(mantissa)
		mantissa -= float64(d)
		mantissa *= 10
		return '0' + byte(d)
	}

	switch {
	case exp >= 15:
		buf = append(buf, digit(), '.')
		for i := 0; i < avm1MaxDecimalPlaces-1; i++ {
			buf = append(buf, digit())
		}
	case exp >= 0:
		buf = append(buf, '0')
		for i := 0; i <= exp; i++ {
			buf = append(buf, digit())
		}
		buf = append(buf, '.')
		for i := 0; i < avm1MaxDecimalPlaces-exp-1; i++ {
			buf = append(buf, digit())
		}
		exp = 0
	case exp >= -5:
		buf = append(buf, '0', '0', '.')
		for i := 0; i < -exp-1; i++ {
			buf = append(buf, '0')
		}
		for i := 0; i < avm1MaxDecimalPlaces; i++ {
			buf = append(buf, digit())
		}
		exp = 0
	default:
		buf = append(buf, '0')
		if d := digit(); d != '0' {
			buf = append(buf, d)
		}
		buf = append(buf, '.')
		for i := 0; i < avm1MaxDecimalPlaces-1; i++ {
			buf = append(buf, digit())
		}
	}

	// Peek at the next digit and round, ties away from zero.
	if digit() >= '5' {
		for i := len(buf) - 1; i >= 0; i-- {
			c := buf[i]
			if c == '9' {
				buf[i] = '0'
			} else if c >= '0' {
				buf[i]++
				break
			}
		}
	}

	for len(buf) > 0 && buf[len(buf)-1] == '0' {
		buf = buf[:len(buf)-1]
	}
	if len(buf) > 0 && buf[len(buf)-1] == '.' {
		buf = buf[:len(buf)-1]
	}

	start := 0
	if exp != 0 {
		// Trim leading zeros (the sign counts as a non-zero byte here, so
		// negative values keep them; the player has the same bug).
		pos := 0
		for pos < len(buf) && buf[pos] == '0' {
			pos++
		}
		buf = buf[pos:]
		if len(buf) == 0 {
			// 9.999 rounded to 0.000 with nowhere to carry.
			buf = append(buf, '1')
			exp++
		} else {
			// 100e15 becomes 1e17.
			last := 0
			for i := len(buf) - 1; i >= 0; i-- {
				if buf[i] != '0' {
					last = i
					break
				}
			}
			if last == 0 {
				exp += len(buf) - 1
				buf = buf[:1]
			}
		}
		buf = append(buf, 'e')
		if exp >= 0 {
			buf = append(buf, '+')
		}
		buf = strconv.AppendInt(buf, int64(exp), 10)
	}

	i := 0
	if negative {
		i = 1
	}
	if i < len(buf) && buf[i] == '0' && (i+1 >= len(buf) || buf[i+1] != '.') {
		if i > 0 {
			buf[i] = buf[i-1]
		}
		start = 1
	}
	return string(buf[start:])
}

// FormatNumber converts a number to a string using the ECMAScript
// Number::toString rules (shortest round-trip digits, exponent form from
// 1e21 up and below 1e-6). AVM2 uses this.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	// d.ddddde±x gives the shortest digits and the exponent.
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(e, "e")
	digits := strings.Replace(mant, ".", "", 1)
	x, _ := strconv.Atoi(expStr)
	k := len(digits)
	n := x + 1

	var b strings.Builder
	b.WriteString(sign)
	switch {
	case k <= n && n <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", n-k))
	case 0 < n && n <= 21:
		b.WriteString(digits[:n])
		b.WriteByte('.')
		b.WriteString(digits[n:])
	case -6 < n && n <= 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -n))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if k > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if n-1 >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(n - 1))
	}
	return b.String()
}

// FormatRadix formats f in the given radix (2..36) as Number.toString(radix)
// does. Radix 10 defers to format. Fractions are written with up to 20
// digits.
func FormatRadix(f float64, radix int, format func(float64) string) string {
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) {
		return format(f)
	}
	negative := f < 0
	if negative {
		f = -f
	}
	intPart := math.Floor(f)
	frac := f - intPart

	var digits []byte
	if intPart == 0 {
		digits = append(digits, '0')
	}
	for intPart > 0 {
		d := int(math.Mod(intPart, float64(radix)))
		digits = append(digits, strconv.FormatInt(int64(d), radix)[0])
		intPart = math.Floor(intPart / float64(radix))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	if frac > 0 {
		digits = append(digits, '.')
		for i := 0; i < 20 && frac > 0; i++ {
			frac *= float64(radix)
			d := int(frac)
			digits = append(digits, strconv.FormatInt(int64(d), radix)[0])
			frac -= float64(d)
		}
	}
	if negative {
		return "-" + string(digits)
	}
	return string(digits)
}
