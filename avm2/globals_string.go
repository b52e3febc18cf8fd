package avm2

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/chazu/avmcore/coerce"
)

// Strings are indexed by code point.

func (vm *VM) installString() {
	c := vm.nativeClass("String", vm.builtins.object, false)
	c.Final = true
	c.primitive = true
	c.call = func(act *Activation, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return String(""), nil
		}
		s, err := act.vm.ToString(act, args[0])
		return String(s), err
	}
	c.InstanceTraits = []Trait{
		vm.getterTrait("length", func(act *Activation, this Value, _ []Value) (Value, error) {
			s, err := act.vm.ToString(act, this)
			return Int(int32(utf8.RuneCountInString(s))), err
		}),
	}
	c.ClassTraits = []Trait{
		vm.methodTrait("fromCharCode", func(act *Activation, _ Value, args []Value) (Value, error) {
			var b strings.Builder
			for _, a := range args {
				f, err := act.vm.ToNumber(act, a)
				if err != nil {
					return Undefined, err
				}
				b.WriteRune(rune(coerce.ToUint16(f)))
			}
			return String(b.String()), nil
		}),
	}
	vm.builtins.str = vm.mustDefine(c)

	p := c.prototype
	str := func(name string, fn func(act *Activation, s []rune, args []Value) (Value, error)) {
		vm.method(p, name, func(act *Activation, this Value, args []Value) (Value, error) {
			s, err := act.vm.ToString(act, this)
			if err != nil {
				return Undefined, err
			}
			return fn(act, []rune(s), args)
		})
	}
	str("toString", func(_ *Activation, s []rune, _ []Value) (Value, error) { return String(string(s)), nil })
	str("valueOf", func(_ *Activation, s []rune, _ []Value) (Value, error) { return String(string(s)), nil })
	str("charAt", func(act *Activation, s []rune, args []Value) (Value, error) {
		i, err := intArg(act, args, 0, 0)
		if err != nil || i < 0 || i >= len(s) {
			return String(""), err
		}
		return String(string(s[i])), nil
	})
	str("charCodeAt", func(act *Activation, s []rune, args []Value) (Value, error) {
		i, err := intArg(act, args, 0, 0)
		if err != nil || i < 0 || i >= len(s) {
			return Number(math.NaN()), err
		}
		return Int(int32(s[i])), nil
	})
	str("indexOf", func(act *Activation, s []rune, args []Value) (Value, error) {
		sub, err := act.vm.ToString(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		from, err := intArg(act, args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Int(int32(runeIndex(s, []rune(sub), max(from, 0)))), nil
	})
	str("lastIndexOf", func(act *Activation, s []rune, args []Value) (Value, error) {
		sub, err := act.vm.ToString(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		from, err := intArg(act, args, 1, len(s))
		if err != nil {
			return Undefined, err
		}
		r := []rune(sub)
		for i := min(from, len(s)-len(r)); i >= 0; i-- {
			if string(s[i:i+len(r)]) == sub {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	})
	str("substring", func(act *Activation, s []rune, args []Value) (Value, error) {
		a, err := intArg(act, args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		b, err := intArg(act, args, 1, len(s))
		if err != nil {
			return Undefined, err
		}
		a, b = min(max(a, 0), len(s)), min(max(b, 0), len(s))
		if a > b {
			a, b = b, a
		}
		return String(string(s[a:b])), nil
	})
	str("substr", func(act *Activation, s []rune, args []Value) (Value, error) {
		start, err := relativeIndex(act, arg(args, 0), len(s), 0)
		if err != nil {
			return Undefined, err
		}
		n, err := intArg(act, args, 1, len(s)-start)
		if err != nil {
			return Undefined, err
		}
		end := min(start+max(n, 0), len(s))
		return String(string(s[start:end])), nil
	})
	str("slice", func(act *Activation, s []rune, args []Value) (Value, error) {
		start, err := relativeIndex(act, arg(args, 0), len(s), 0)
		if err != nil {
			return Undefined, err
		}
		end, err := relativeIndex(act, arg(args, 1), len(s), len(s))
		if err != nil {
			return Undefined, err
		}
		if end < start {
			end = start
		}
		return String(string(s[start:end])), nil
	})
	str("toUpperCase", func(_ *Activation, s []rune, _ []Value) (Value, error) {
		return String(strings.ToUpper(string(s))), nil
	})
	str("toLowerCase", func(_ *Activation, s []rune, _ []Value) (Value, error) {
		return String(strings.ToLower(string(s))), nil
	})
	str("concat", func(act *Activation, s []rune, args []Value) (Value, error) {
		var b strings.Builder
		b.WriteString(string(s))
		for _, a := range args {
			t, err := act.vm.ToString(act, a)
			if err != nil {
				return Undefined, err
			}
			b.WriteString(t)
		}
		return String(b.String()), nil
	})
	str("localeCompare", func(act *Activation, s []rune, args []Value) (Value, error) {
		t, err := act.vm.ToString(act, arg(args, 0))
		return Int(int32(coerce.CompareUTF16(string(s), t))), err
	})
	str("split", stringSplit)
	str("replace", stringReplace)
	str("match", stringMatch)
	str("search", func(act *Activation, s []rune, args []Value) (Value, error) {
		re, err := act.vm.toRegExp(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		m, err := re.re.FindRunesMatchStartingAt(s, 0)
		if err != nil {
			return Undefined, act.vm.throwError(KindError, 0, "%s", err)
		}
		if m == nil {
			return Int(-1), nil
		}
		return Int(int32(m.Index)), nil
	})
}

func intArg(act *Activation, args []Value, i, def int) (int, error) {
	v := arg(args, i)
	if v.IsUndefined() {
		return def, nil
	}
	f, err := act.vm.ToNumber(act, v)
	if err != nil {
		return 0, err
	}
	f = coerce.ToInteger(f)
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32, nil
	case f < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(f), nil
}

func runeIndex(s, sub []rune, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if string(s[i:i+len(sub)]) == string(sub) {
			return i
		}
	}
	return -1
}

func stringSplit(act *Activation, s []rune, args []Value) (Value, error) {
	vm := act.vm
	limit := math.MaxInt32
	if l := arg(args, 1); !l.IsUndefined() {
		u, err := vm.toUint32(act, l)
		if err != nil {
			return Undefined, err
		}
		limit = int(min(u, math.MaxInt32))
	}
	sep := arg(args, 0)
	var parts []Value
	add := func(p string) bool {
		if len(parts) >= limit {
			return false
		}
		parts = append(parts, String(p))
		return true
	}
	switch {
	case sep.IsUndefined():
		add(string(s))
	case isRegExp(sep):
		re := sep.o.native.(*regexpData)
		if len(s) == 0 {
			m, err := re.re.FindRunesMatchStartingAt(s, 0)
			if err != nil {
				return Undefined, vm.throwError(KindError, 0, "%s", err)
			}
			if m == nil {
				add("")
			}
			break
		}
		last := 0
		ms, err := re.matches(s, true)
		if err != nil {
			return Undefined, vm.throwError(KindError, 0, "%s", err)
		}
		for _, m := range ms {
			if m.Length == 0 && (m.Index == 0 || m.Index >= len(s)) {
				continue
			}
			if !add(string(s[last:m.Index])) {
				break
			}
			for _, g := range m.Groups()[1:] {
				if len(g.Captures) == 0 {
					parts = append(parts, Undefined)
					continue
				}
				add(g.String())
			}
			last = m.Index + m.Length
		}
		add(string(s[last:]))
	default:
		d, err := vm.ToString(act, sep)
		if err != nil {
			return Undefined, err
		}
		if d == "" {
			for _, r := range s {
				if !add(string(r)) {
					break
				}
			}
			break
		}
		for _, p := range strings.Split(string(s), d) {
			if !add(p) {
				break
			}
		}
	}
	return ObjectValue(vm.NewArray(parts)), nil
}

func stringReplace(act *Activation, s []rune, args []Value) (Value, error) {
	vm := act.vm
	pat, repl := arg(args, 0), arg(args, 1)
	type span struct {
		index, length int
		groups        []Value
	}
	var spans []span
	if isRegExp(pat) {
		re := pat.o.native.(*regexpData)
		ms, err := re.matches(s, re.global)
		if err != nil {
			return Undefined, vm.throwError(KindError, 0, "%s", err)
		}
		for _, m := range ms {
			sp := span{index: m.Index, length: m.Length}
			for _, g := range m.Groups()[1:] {
				if len(g.Captures) == 0 {
					sp.groups = append(sp.groups, Undefined)
				} else {
					sp.groups = append(sp.groups, String(g.String()))
				}
			}
			spans = append(spans, sp)
		}
		if re.global {
			re.lastIndex = 0
		}
	} else {
		p, err := vm.ToString(act, pat)
		if err != nil {
			return Undefined, err
		}
		sub := []rune(p)
		if i := runeIndex(s, sub, 0); i >= 0 {
			spans = append(spans, span{index: i, length: len(sub)})
		}
	}

	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(string(s[last:sp.index]))
		matched := string(s[sp.index : sp.index+sp.length])
		if repl.o != nil && repl.o.IsCallable() {
			callArgs := append([]Value{String(matched)}, sp.groups...)
			callArgs = append(callArgs, Int(int32(sp.index)), String(string(s)))
			r, err := vm.callValue(act, repl, Null, callArgs)
			if err != nil {
				return Undefined, err
			}
			t, err := vm.ToString(act, r)
			if err != nil {
				return Undefined, err
			}
			b.WriteString(t)
		} else {
			t, err := vm.ToString(act, repl)
			if err != nil {
				return Undefined, err
			}
			b.WriteString(expandReplacement(t, s, sp.index, sp.length, sp.groups))
		}
		last = sp.index + sp.length
	}
	b.WriteString(string(s[last:]))
	return String(b.String()), nil
}

// expandReplacement substitutes $$, $&, $`, $' and $n / $nn.
func expandReplacement(t string, s []rune, index, length int, groups []Value) string {
	var b strings.Builder
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c != '$' || i+1 >= len(t) {
			b.WriteByte(c)
			continue
		}
		next := t[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(string(s[index : index+length]))
			i++
		case next == '`':
			b.WriteString(string(s[:index]))
			i++
		case next == '\'':
			b.WriteString(string(s[index+length:]))
			i++
		case next >= '0' && next <= '9':
			n, width := int(next-'0'), 1
			if i+2 < len(t) && t[i+2] >= '0' && t[i+2] <= '9' {
				if nn := n*10 + int(t[i+2]-'0'); nn >= 1 && nn <= len(groups) {
					n, width = nn, 2
				}
			}
			if n < 1 || n > len(groups) {
				b.WriteByte(c)
				continue
			}
			if g := groups[n-1]; g.kind == KindString {
				b.WriteString(g.s)
			}
			i += width
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stringMatch(act *Activation, s []rune, args []Value) (Value, error) {
	vm := act.vm
	re, err := vm.toRegExp(act, arg(args, 0))
	if err != nil {
		return Undefined, err
	}
	if !re.global {
		return vm.regexpExec(re, string(s))
	}
	ms, err := re.matches(s, true)
	if err != nil {
		return Undefined, vm.throwError(KindError, 0, "%s", err)
	}
	re.lastIndex = 0
	if len(ms) == 0 {
		return Null, nil
	}
	out := make([]Value, len(ms))
	for i, m := range ms {
		out[i] = String(m.String())
	}
	return ObjectValue(vm.NewArray(out)), nil
}

// ---------------------------------------------------------------------------
// RegExp
// ---------------------------------------------------------------------------

// regexpData is the native payload of a RegExp instance.
type regexpData struct {
	re         *regexp2.Regexp
	source     string
	global     bool
	ignoreCase bool
	multiline  bool
	dotall     bool
	extended   bool
	lastIndex  int
}

func (r *regexpData) flags() string {
	var b strings.Builder
	for _, f := range []struct {
		on bool
		c  byte
	}{{r.global, 'g'}, {r.ignoreCase, 'i'}, {r.multiline, 'm'}, {r.dotall, 's'}, {r.extended, 'x'}} {
		if f.on {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}

// compile parses source with the given flag letters. ECMAScript syntax is
// used unless the dotall or extended flags need .NET options it cannot be
// combined with.
func (r *regexpData) compile(source, flags string) error {
	r.source = source
	for _, c := range flags {
		switch c {
		case 'g':
			r.global = true
		case 'i':
			r.ignoreCase = true
		case 'm':
			r.multiline = true
		case 's':
			r.dotall = true
		case 'x':
			r.extended = true
		}
	}
	var opts regexp2.RegexOptions
	if r.ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	if r.multiline {
		opts |= regexp2.Multiline
	}
	if r.dotall {
		opts |= regexp2.Singleline
	}
	if r.extended {
		opts |= regexp2.IgnorePatternWhitespace
	}
	if !r.dotall && !r.extended {
		opts |= regexp2.ECMAScript
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return err
	}
	r.re = re
	return nil
}

// matches returns the first match, or every non-overlapping match.
func (r *regexpData) matches(s []rune, all bool) ([]*regexp2.Match, error) {
	var out []*regexp2.Match
	m, err := r.re.FindRunesMatchStartingAt(s, 0)
	for m != nil && err == nil {
		out = append(out, m)
		if !all {
			break
		}
		m, err = r.re.FindNextMatch(m)
	}
	return out, err
}

func isRegExp(v Value) bool {
	if v.o == nil {
		return false
	}
	r, ok := v.o.native.(*regexpData)
	return ok && r.re != nil
}

// toRegExp returns v's pattern, compiling non-RegExp values as a source
// string.
func (vm *VM) toRegExp(act *Activation, v Value) (*regexpData, error) {
	if isRegExp(v) {
		return v.o.native.(*regexpData), nil
	}
	src := ""
	if !v.IsUndefined() {
		var err error
		if src, err = vm.ToString(act, v); err != nil {
			return nil, err
		}
	}
	r := &regexpData{}
	if err := r.compile(src, ""); err != nil {
		return nil, vm.throwError(KindError, 0, "invalid regular expression /%s/: %s", src, err)
	}
	return r, nil
}

// regexpExec implements RegExp.exec: the match array carries the groups
// plus index and input properties. Global patterns start at lastIndex and
// advance it.
func (vm *VM) regexpExec(r *regexpData, s string) (Value, error) {
	runes := []rune(s)
	start := 0
	if r.global {
		start = r.lastIndex
		if start > len(runes) {
			r.lastIndex = 0
			return Null, nil
		}
	}
	m, err := r.re.FindRunesMatchStartingAt(runes, start)
	if err != nil {
		return Undefined, vm.throwError(KindError, 0, "%s", err)
	}
	if m == nil {
		if r.global {
			r.lastIndex = 0
		}
		return Null, nil
	}
	groups := m.Groups()
	vals := make([]Value, len(groups))
	for i, g := range groups {
		if len(g.Captures) == 0 {
			vals[i] = Undefined
		} else {
			vals[i] = String(g.String())
		}
	}
	out := vm.NewArray(vals)
	out.SetDynamic("index", Int(int32(m.Index)))
	out.SetDynamic("input", String(s))
	if r.global {
		r.lastIndex = m.Index + m.Length
		if m.Length == 0 {
			r.lastIndex++
		}
	}
	return ObjectValue(out), nil
}

func (vm *VM) installRegExp() {
	c := vm.nativeClass("RegExp", vm.builtins.object, true)
	c.alloc = func(o *Object) { o.native = &regexpData{} }
	c.InstanceInit = initWith("RegExp", func(act *Activation, this *Object, args []Value) error {
		r := this.native.(*regexpData)
		pat, flags := arg(args, 0), arg(args, 1)
		if isRegExp(pat) && flags.IsUndefined() {
			src := pat.o.native.(*regexpData)
			return r.compile(src.source, src.flags())
		}
		source, f := "", ""
		var err error
		if !pat.IsUndefined() {
			if source, err = act.vm.ToString(act, pat); err != nil {
				return err
			}
		}
		if !flags.IsUndefined() {
			if f, err = act.vm.ToString(act, flags); err != nil {
				return err
			}
		}
		if err := r.compile(source, f); err != nil {
			return act.vm.throwError(KindError, 0, "invalid regular expression /%s/: %s", source, err)
		}
		return nil
	})
	c.call = func(act *Activation, _ Value, args []Value) (Value, error) {
		if isRegExp(arg(args, 0)) && arg(args, 1).IsUndefined() {
			return args[0], nil
		}
		return act.vm.construct(act, c, args)
	}
	flag := func(name string, get func(r *regexpData) Value) Trait {
		return vm.getterTrait(name, func(_ *Activation, this Value, _ []Value) (Value, error) {
			return get(this.o.native.(*regexpData)), nil
		})
	}
	c.InstanceTraits = []Trait{
		flag("source", func(r *regexpData) Value { return String(r.source) }),
		flag("global", func(r *regexpData) Value { return Bool(r.global) }),
		flag("ignoreCase", func(r *regexpData) Value { return Bool(r.ignoreCase) }),
		flag("multiline", func(r *regexpData) Value { return Bool(r.multiline) }),
		flag("dotall", func(r *regexpData) Value { return Bool(r.dotall) }),
		flag("extended", func(r *regexpData) Value { return Bool(r.extended) }),
		flag("lastIndex", func(r *regexpData) Value { return Int(int32(r.lastIndex)) }),
		vm.setterTrait("lastIndex", func(act *Activation, this Value, args []Value) (Value, error) {
			i, err := act.vm.toInt32(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			this.o.native.(*regexpData).lastIndex = max(int(i), 0)
			return Undefined, nil
		}),
	}
	vm.builtins.regexp = vm.mustDefine(c)

	p := c.prototype
	vm.method(p, "exec", func(act *Activation, this Value, args []Value) (Value, error) {
		if !isRegExp(this) {
			return Null, nil
		}
		s, err := act.vm.ToString(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return act.vm.regexpExec(this.o.native.(*regexpData), s)
	})
	vm.method(p, "test", func(act *Activation, this Value, args []Value) (Value, error) {
		if !isRegExp(this) {
			return Bool(false), nil
		}
		s, err := act.vm.ToString(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		r, err := act.vm.regexpExec(this.o.native.(*regexpData), s)
		return Bool(r.o != nil), err
	})
	vm.method(p, "toString", func(_ *Activation, this Value, _ []Value) (Value, error) {
		if !isRegExp(this) {
			return String("/(?:)/"), nil
		}
		r := this.o.native.(*regexpData)
		return String("/" + r.source + "/" + r.flags()), nil
	})
}
