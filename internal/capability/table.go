package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Type is a platform capability type tag.
type Type string

// Capability types exposed by the strip.
const (
	TypeOnOff        Type = "devices.capabilities.on_off"
	TypeRange        Type = "devices.capabilities.range"
	TypeMode         Type = "devices.capabilities.mode"
	TypeColorSetting Type = "devices.capabilities.color_setting" //nolint:misspell // platform vocabulary
)

// Instance names recognised by the table.
const (
	InstanceOn         = "on"
	InstanceBrightness = "brightness"
	InstanceProgram    = "program"
	InstanceHSV        = "hsv"
)

// Brightness bounds, inclusive.
const (
	MinBrightness = 0
	MaxBrightness = 100
)

// entry describes one instance: how to decode, check, read and write it,
// and which command token carries it on the wire.
type entry struct {
	typ     Type
	kind    Kind
	command string
	decode  func(any) (Value, bool)
	check   func(Value) error
	read    func(State) Value
	write   func(*State, Value)
}

var table = map[string]entry{
	InstanceOn: {
		typ:     TypeOnOff,
		kind:    KindBool,
		command: "STATE",
		decode: func(raw any) (Value, bool) {
			b, ok := raw.(bool)
			return BoolValue(b), ok
		},
		read:  func(s State) Value { return BoolValue(s.On) },
		write: func(s *State, v Value) { s.On = v.Bool() },
	},
	InstanceBrightness: {
		typ:     TypeRange,
		kind:    KindInt,
		command: "BRIGHTNESS",
		decode: func(raw any) (Value, bool) {
			n, ok := integer(raw)
			return IntValue(n), ok
		},
		check: func(v Value) error {
			if v.Int() < MinBrightness || v.Int() > MaxBrightness {
				return fmt.Errorf("%w: brightness %d outside [%d,%d]", ErrInvalidValue, v.Int(), MinBrightness, MaxBrightness)
			}
			return nil
		},
		read:  func(s State) Value { return IntValue(s.Brightness) },
		write: func(s *State, v Value) { s.Brightness = v.Int() },
	},
	InstanceProgram: {
		typ:     TypeMode,
		kind:    KindMode,
		command: "MODE",
		decode: func(raw any) (Value, bool) {
			s, ok := raw.(string)
			if !ok {
				return Value{}, false
			}
			return ModeValue(Mode(s)), true
		},
		check: func(v Value) error {
			if _, ok := ParseMode(string(v.Mode())); !ok {
				return fmt.Errorf("%w: unknown program %q", ErrInvalidValue, v.Mode())
			}
			return nil
		},
		read:  func(s State) Value { return ModeValue(s.Program) },
		write: func(s *State, v Value) { s.Program = v.Mode() },
	},
	InstanceHSV: {
		typ:     TypeColorSetting,
		kind:    KindHSV,
		command: "COLOR",
		decode: func(raw any) (Value, bool) {
			obj, ok := raw.(map[string]any)
			if !ok {
				return Value{}, false
			}
			var c HSV
			for key, dst := range map[string]*int{"h": &c.H, "s": &c.S, "v": &c.V} {
				n, ok := integer(obj[key])
				if !ok {
					return Value{}, false
				}
				*dst = n
			}
			return HSVValue(c), true
		},
		read:  func(s State) Value { return HSVValue(s.HSV) },
		write: func(s *State, v Value) { s.HSV = v.HSV() },
	},
}

// integer accepts a JSON number with no fraction or exponent.
func integer(raw any) (int, bool) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookup(instance string) (entry, error) {
	e, ok := table[instance]
	if !ok {
		return entry{}, fmt.Errorf("%w: %q", ErrUnsupportedCapability, instance)
	}
	return e, nil
}

// Instances returns the recognised instance names in display order.
func Instances() []string {
	return []string{InstanceOn, InstanceBrightness, InstanceProgram, InstanceHSV}
}

// Lookup returns the capability type that carries instance.
func Lookup(instance string) (Type, bool) {
	e, ok := table[instance]
	return e.typ, ok
}

// Decode parses a raw JSON value for instance into a validated Value.
func Decode(instance string, raw json.RawMessage) (Value, error) {
	e, err := lookup(instance)
	if err != nil {
		return Value{}, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("%w: missing value for %s", ErrInvalidValue, instance)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return Value{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, instance, err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("%w: %s: trailing data", ErrInvalidValue, instance)
	}

	v, ok := e.decode(generic)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s does not accept %s", ErrInvalidValue, instance, trimmed)
	}
	if err := e.validate(v); err != nil {
		return Value{}, err
	}
	return v, nil
}

func (e entry) validate(v Value) error {
	if v.Kind() != e.kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidValue, e.kind, v.Kind())
	}
	if e.check != nil {
		return e.check(v)
	}
	return nil
}

// Read returns the current value of instance in s.
func Read(s State, instance string) (Value, error) {
	e, err := lookup(instance)
	if err != nil {
		return Value{}, err
	}
	return e.read(s), nil
}

// Apply validates v, writes it into s and returns the rendered wire command.
// On error s is left unchanged.
func Apply(s *State, instance string, v Value) (string, error) {
	e, err := lookup(instance)
	if err != nil {
		return "", err
	}
	cmd, err := e.render(v)
	if err != nil {
		return "", err
	}
	e.write(s, v)
	return cmd, nil
}

// Render returns the wire command for v without touching any state.
func Render(instance string, v Value) (string, error) {
	e, err := lookup(instance)
	if err != nil {
		return "", err
	}
	return e.render(v)
}

func (e entry) render(v Value) (string, error) {
	if err := e.validate(v); err != nil {
		return "", err
	}
	return e.command + ":" + v.Text(), nil
}
