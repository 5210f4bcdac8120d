package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		raw      string
		want     Value
		wantErr  error
	}{
		{"on true", InstanceOn, `true`, BoolValue(true), nil},
		{"on false", InstanceOn, `false`, BoolValue(false), nil},
		{"on string", InstanceOn, `"true"`, Value{}, ErrInvalidValue},
		{"on number", InstanceOn, `1`, Value{}, ErrInvalidValue},
		{"on null", InstanceOn, `null`, Value{}, ErrInvalidValue},
		{"on missing", InstanceOn, ``, Value{}, ErrInvalidValue},
		{"brightness zero", InstanceBrightness, `0`, IntValue(0), nil},
		{"brightness max", InstanceBrightness, `100`, IntValue(100), nil},
		{"brightness below range", InstanceBrightness, `-1`, Value{}, ErrInvalidValue},
		{"brightness above range", InstanceBrightness, `101`, Value{}, ErrInvalidValue},
		{"brightness fractional", InstanceBrightness, `50.5`, Value{}, ErrInvalidValue},
		{"brightness float literal", InstanceBrightness, `50.0`, Value{}, ErrInvalidValue},
		{"brightness bool", InstanceBrightness, `true`, Value{}, ErrInvalidValue},
		{"brightness string", InstanceBrightness, `"50"`, Value{}, ErrInvalidValue},
		{"brightness trailing data", InstanceBrightness, `50 60`, Value{}, ErrInvalidValue},
		{"program valid", InstanceProgram, `"three"`, ModeValue(ModeThree), nil},
		{"program unknown", InstanceProgram, `"six"`, Value{}, ErrInvalidValue},
		{"program number", InstanceProgram, `3`, Value{}, ErrInvalidValue},
		{"hsv valid", InstanceHSV, `{"h":10,"s":20,"v":30}`, HSVValue(HSV{H: 10, S: 20, V: 30}), nil},
		{"hsv extra key", InstanceHSV, `{"h":1,"s":2,"v":3,"a":4}`, HSVValue(HSV{H: 1, S: 2, V: 3}), nil},
		{"hsv missing key", InstanceHSV, `{"h":10,"s":20}`, Value{}, ErrInvalidValue},
		{"hsv non-integer", InstanceHSV, `{"h":10.5,"s":20,"v":30}`, Value{}, ErrInvalidValue},
		{"hsv string component", InstanceHSV, `{"h":"10","s":20,"v":30}`, Value{}, ErrInvalidValue},
		{"hsv array", InstanceHSV, `[10,20,30]`, Value{}, ErrInvalidValue},
		{"unknown instance", "temperature", `21`, Value{}, ErrUnsupportedCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.instance, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestApply_WireCommands(t *testing.T) {
	tests := []struct {
		instance string
		value    Value
		want     string
	}{
		{InstanceOn, BoolValue(true), "STATE:ON"},
		{InstanceOn, BoolValue(false), "STATE:OFF"},
		{InstanceBrightness, IntValue(42), "BRIGHTNESS:42"},
		{InstanceProgram, ModeValue(ModeFive), "MODE:five"},
		{InstanceHSV, HSVValue(HSV{H: 120, S: 50, V: 75}), "COLOR:120,50,75"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			state := DefaultState()
			cmd, err := Apply(&state, tt.instance, tt.value)
			if err != nil {
				t.Fatalf("Apply() error: %v", err)
			}
			if cmd != tt.want {
				t.Errorf("Apply() command = %q, want %q", cmd, tt.want)
			}

			got, err := Read(state, tt.instance)
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("Read() after Apply = %#v, want %#v", got, tt.value)
			}

			rendered, err := Render(tt.instance, tt.value)
			if err != nil || rendered != tt.want {
				t.Errorf("Render() = %q, %v; want %q", rendered, err, tt.want)
			}
		})
	}
}

func TestApply_AllBrightnessValues(t *testing.T) {
	for v := MinBrightness; v <= MaxBrightness; v++ {
		state := DefaultState()
		if _, err := Apply(&state, InstanceBrightness, IntValue(v)); err != nil {
			t.Fatalf("Apply(brightness=%d) error: %v", v, err)
		}
		if state.Brightness != v {
			t.Fatalf("Brightness = %d, want %d", state.Brightness, v)
		}
	}
}

func TestApply_InvalidLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		value    Value
		wantErr  error
	}{
		{"brightness out of range", InstanceBrightness, IntValue(150), ErrInvalidValue},
		{"negative brightness", InstanceBrightness, IntValue(-5), ErrInvalidValue},
		{"wrong kind", InstanceOn, IntValue(1), ErrInvalidValue},
		{"empty value", InstanceHSV, Value{}, ErrInvalidValue},
		{"unknown mode", InstanceProgram, ModeValue("disco"), ErrInvalidValue},
		{"unsupported", "temperature", IntValue(21), ErrUnsupportedCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultState()
			before := state

			if _, err := Apply(&state, tt.instance, tt.value); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if state != before {
				t.Errorf("state changed on error: %+v, want %+v", state, before)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	want := map[string]Type{
		InstanceOn:         TypeOnOff,
		InstanceBrightness: TypeRange,
		InstanceProgram:    TypeMode,
		InstanceHSV:        TypeColorSetting,
	}
	for _, inst := range Instances() {
		typ, ok := Lookup(inst)
		if !ok || typ != want[inst] {
			t.Errorf("Lookup(%q) = %q, %v; want %q", inst, typ, ok, want[inst])
		}
	}
	if _, ok := Lookup("temperature"); ok {
		t.Error("Lookup(temperature) should not resolve")
	}
}

func TestDefaultState(t *testing.T) {
	s := DefaultState()
	if !s.On || s.Brightness != 100 || s.Program != ModeOne || s.HSV != (HSV{H: 240, S: 100, V: 100}) {
		t.Errorf("DefaultState() = %+v", s)
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{BoolValue(false), `false`},
		{IntValue(0), `0`},
		{ModeValue(ModeTwo), `"two"`},
		{HSVValue(HSV{H: 1, S: 2, V: 3}), `{"h":1,"s":2,"v":3}`},
		{Value{}, `null`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.value)
		if err != nil {
			t.Fatalf("Marshal(%v) error: %v", tt.value.Kind(), err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.value.Kind(), got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{fmt.Errorf("wrapped: %w", ErrInvalidValue), CodeInvalidValue},
		{fmt.Errorf("wrapped: %w", ErrUnsupportedCapability), CodeUnsupportedCapability},
		{errors.New("other"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
