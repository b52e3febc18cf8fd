package avm1

import (
	"math"
	"testing"
)

func TestAbstractEquality(t *testing.T) {
	h := newHarness(t, 7)
	act := h.vm.RootActivation()
	obj := h.vm.NewObject()
	other := h.vm.NewObject()
	boxed := act.ToObject(Number(5))

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"undefined == undefined", Undefined, Undefined, true},
		{"undefined == null", Undefined, Null, true},
		{"null == undefined", Null, Undefined, true},
		{"undefined == 0", Undefined, Number(0), false},
		{"null == false", Null, Bool(false), false},
		{"true == 1", Bool(true), Number(1), true},
		{"false == \"0\"", Bool(false), String("0"), true},
		{"1 == \"1\"", Number(1), String("1"), true},
		{"\"0x10\" == 16", String("0x10"), Number(16), true},
		{"NaN == NaN", Number(math.NaN()), Number(math.NaN()), false},
		{"\"a\" == \"a\"", String("a"), String("a"), true},
		{"\"a\" == \"A\"", String("a"), String("A"), false},
		{"obj == obj", ObjectValue(obj), ObjectValue(obj), true},
		{"obj == other", ObjectValue(obj), ObjectValue(other), false},
		{"new Number(5) == 5", ObjectValue(boxed), Number(5), true},
		{"5 == new Number(5)", Number(5), ObjectValue(boxed), true},
		{"obj == undefined", ObjectValue(obj), Undefined, false},
	}
	for _, tt := range tests {
		got, err := act.AbstractEq(tt.a, tt.b)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEqualityIsSymmetricOverKinds(t *testing.T) {
	h := newHarness(t, 7)
	act := h.vm.RootActivation()
	samples := []Value{
		Undefined, Null, Bool(true), Bool(false), Number(0), Number(1),
		Number(math.NaN()), String(""), String("1"), String("abc"),
		ObjectValue(h.vm.NewObject()), ObjectValue(h.vm.NewArray(nil)),
	}
	for _, a := range samples {
		for _, b := range samples {
			ab, err := act.AbstractEq(a, b)
			if err != nil {
				t.Fatal(err)
			}
			ba, err := act.AbstractEq(b, a)
			if err != nil {
				t.Fatal(err)
			}
			if ab != ba {
				t.Errorf("%v == %v is %v but the reverse is %v", a, b, ab, ba)
			}
		}
	}
}

func TestToNumberByVersion(t *testing.T) {
	tests := []struct {
		version uint8
		in      Value
		want    float64
	}{
		{4, String("12abc"), 12},
		{4, String("abc"), 0},
		{5, String("12abc"), math.NaN()},
		{5, String("0x10"), math.NaN()},
		{6, String("0x10"), 16},
		{6, String("-0x10"), -16},
		{6, String("017"), 15},
		{6, String("019"), 19},
		{6, Undefined, 0},
		{7, Undefined, math.NaN()},
		{7, Null, math.NaN()},
		{7, Bool(true), 1},
		{7, String(" 3.5 "), 3.5},
		{7, String(""), math.NaN()},
	}
	for _, tt := range tests {
		h := newHarness(t, tt.version)
		got, err := h.vm.RootActivation().ToNumber(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if math.IsNaN(tt.want) {
			if !math.IsNaN(got) {
				t.Errorf("SWF %d ToNumber(%v) = %v, want NaN", tt.version, tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("SWF %d ToNumber(%v) = %v, want %v", tt.version, tt.in, got, tt.want)
		}
	}
}

func TestToStringByVersion(t *testing.T) {
	tests := []struct {
		version uint8
		in      Value
		want    string
	}{
		{6, Undefined, ""},
		{7, Undefined, "undefined"},
		{4, Bool(true), "1"},
		{5, Bool(true), "true"},
		{7, Null, "null"},
		{7, Number(0.1), "0.1"},
		{7, Number(1e15), "1e+15"},
	}
	for _, tt := range tests {
		h := newHarness(t, tt.version)
		got, err := h.vm.RootActivation().ToString(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("SWF %d ToString(%v) = %q, want %q", tt.version, tt.in, got, tt.want)
		}
	}

	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	if s, _ := act.ToString(ObjectValue(h.vm.NewObject())); s != "[object Object]" {
		t.Errorf("object ToString = %q", s)
	}
	fn := h.vm.NewFunction("f", func(*Activation, *Object, []Value) (Value, error) { return Undefined, nil })
	if s, _ := act.ToString(ObjectValue(fn)); s != "[type Function]" {
		t.Errorf("function ToString = %q", s)
	}
	arr := h.vm.NewArray([]Value{Number(1), String("a"), Undefined})
	if s, _ := act.ToString(ObjectValue(arr)); s != "1,a,undefined" {
		t.Errorf("array ToString = %q", s)
	}
}

func TestToBoolByVersion(t *testing.T) {
	h6 := newHarness(t, 6).vm.RootActivation()
	h7 := newHarness(t, 7).vm.RootActivation()
	if h6.ToBool(String("abc")) {
		t.Error("SWF 6: non-numeric string should be false")
	}
	if !h6.ToBool(String("2")) {
		t.Error("SWF 6: \"2\" should be true")
	}
	if !h7.ToBool(String("0")) {
		t.Error("SWF 7: non-empty string should be true")
	}
	if h7.ToBool(String("")) || h7.ToBool(Number(math.NaN())) || h7.ToBool(Null) {
		t.Error("SWF 7: falsy values")
	}
}

func TestTypeOf(t *testing.T) {
	h := newHarness(t, 8)
	fn := h.vm.NewFunction("f", nil)
	tests := map[string]Value{
		"undefined": Undefined,
		"null":      Null,
		"boolean":   Bool(true),
		"number":    Number(1),
		"string":    String("s"),
		"object":    ObjectValue(h.vm.NewObject()),
		"function":  ObjectValue(fn),
	}
	for want, v := range tests {
		if got := TypeOf(v); got != want {
			t.Errorf("TypeOf(%v) = %q, want %q", v, got, want)
		}
	}
}

func TestStrictEquals(t *testing.T) {
	if StrictEquals(Number(1), String("1")) {
		t.Error("1 === \"1\"")
	}
	if StrictEquals(Number(math.NaN()), Number(math.NaN())) {
		t.Error("NaN === NaN")
	}
	if !StrictEquals(Undefined, Undefined) || StrictEquals(Undefined, Null) {
		t.Error("undefined/null strict equality")
	}
}

func TestAbstractLessThan(t *testing.T) {
	act := newHarness(t, 7).vm.RootActivation()
	r, _ := act.AbstractLt(Number(1), Number(2))
	if !r.AsBool() || r.Kind() != KindBool {
		t.Errorf("1 < 2 = %v", r)
	}
	r, _ = act.AbstractLt(String("a"), String("b"))
	if !r.AsBool() {
		t.Errorf("\"a\" < \"b\" = %v", r)
	}
	// U+1F600 is the pair D83D DE00, below U+FFFF in code units.
	r, _ = act.AbstractLt(String("\U0001F600"), String("\uFFFF"))
	if !r.AsBool() {
		t.Errorf("U+1F600 < U+FFFF = %v, want true", r)
	}
	r, _ = act.AbstractLt(Number(math.NaN()), Number(1))
	if !r.IsUndefined() {
		t.Errorf("NaN < 1 = %v, want undefined", r)
	}
}
