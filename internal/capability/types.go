package capability

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Mode is one of the five lighting programs the strip controller runs.
type Mode string

// Strip programs.
const (
	ModeOne   Mode = "one"
	ModeTwo   Mode = "two"
	ModeThree Mode = "three"
	ModeFour  Mode = "four"
	ModeFive  Mode = "five"
)

// AllModes returns the programs in canonical order.
func AllModes() []Mode {
	return []Mode{ModeOne, ModeTwo, ModeThree, ModeFour, ModeFive}
}

// ParseMode returns the Mode named s.
func ParseMode(s string) (Mode, bool) {
	for _, m := range AllModes() {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// HSV is a colour in hue/saturation/value components.
type HSV struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

// State is the mirrored state of one strip.
type State struct {
	On         bool `json:"on"`
	Brightness int  `json:"brightness"`
	Program    Mode `json:"program"`
	HSV        HSV  `json:"hsv"`
}

// DefaultState returns the state a strip is assumed to be in when it connects.
func DefaultState() State {
	return State{
		On:         true,
		Brightness: 100,
		Program:    ModeOne,
		HSV:        HSV{H: 240, S: 100, V: 100},
	}
}

// Kind discriminates the variants of Value.
type Kind uint8

// Value kinds. The zero Kind marks an empty Value.
const (
	KindBool Kind = iota + 1
	KindInt
	KindMode
	KindHSV
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindMode:
		return "mode"
	case KindHSV:
		return "hsv"
	default:
		return "empty"
	}
}

// Value is a capability value: exactly one of bool, int, mode or HSV.
type Value struct {
	kind Kind
	b    bool
	i    int
	mode Mode
	hsv  HSV
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue returns an integer Value.
func IntValue(i int) Value { return Value{kind: KindInt, i: i} }

// ModeValue returns a program Value.
func ModeValue(m Mode) Value { return Value{kind: KindMode, mode: m} }

// HSVValue returns a colour Value.
func HSVValue(c HSV) Value { return Value{kind: KindHSV, hsv: c} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload. Only meaningful for KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Only meaningful for KindInt.
func (v Value) Int() int { return v.i }

// Mode returns the program payload. Only meaningful for KindMode.
func (v Value) Mode() Mode { return v.mode }

// HSV returns the colour payload. Only meaningful for KindHSV.
func (v Value) HSV() HSV { return v.hsv }

// Text renders v the way it appears after the colon of a wire command.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "ON"
		}
		return "OFF"
	case KindInt:
		return strconv.Itoa(v.i)
	case KindMode:
		return string(v.mode)
	case KindHSV:
		return fmt.Sprintf("%d,%d,%d", v.hsv.H, v.hsv.S, v.hsv.V)
	default:
		return ""
	}
}

// MarshalJSON encodes v as the plain JSON value the platform expects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindMode:
		return json.Marshal(v.mode)
	case KindHSV:
		return json.Marshal(v.hsv)
	default:
		return []byte("null"), nil
	}
}

// Equal reports whether v and o hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}
