package capability

// Descriptor advertises one capability of a device class to the platform.
type Descriptor struct {
	Type        Type       `json:"type"`
	Retrievable bool       `json:"retrievable"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters carries the instance-specific part of a Descriptor.
// Fields that do not apply to the capability type are left empty.
type Parameters struct {
	Instance   string       `json:"instance,omitempty"`
	Unit       string       `json:"unit,omitempty"`
	Range      *Range       `json:"range,omitempty"`
	Modes      []ModeOption `json:"modes,omitempty"`
	ColorModel string       `json:"color_model,omitempty"` //nolint:misspell // platform vocabulary
}

// Range bounds a range capability.
type Range struct {
	Min       int `json:"min"`
	Max       int `json:"max"`
	Precision int `json:"precision"`
}

// ModeOption is one selectable value of a mode capability.
type ModeOption struct {
	Value Mode `json:"value"`
}

// Instance returns the state instance a descriptor reports, or "" when the
// descriptor does not resolve to one.
func (d Descriptor) Instance() string {
	switch d.Type {
	case TypeOnOff:
		return InstanceOn
	case TypeRange, TypeMode:
		return d.Parameters.Instance
	case TypeColorSetting:
		return d.Parameters.ColorModel
	default:
		return ""
	}
}

// StripDescriptors returns the capability list of the smart strip class.
// Each call returns a fresh slice.
func StripDescriptors() []Descriptor {
	modes := make([]ModeOption, 0, len(AllModes()))
	for _, m := range AllModes() {
		modes = append(modes, ModeOption{Value: m})
	}

	return []Descriptor{
		{
			Type:        TypeOnOff,
			Retrievable: true,
		},
		{
			Type:        TypeRange,
			Retrievable: true,
			Parameters: Parameters{
				Instance: InstanceBrightness,
				Unit:     "unit.percent",
				Range:    &Range{Min: MinBrightness, Max: MaxBrightness, Precision: 1},
			},
		},
		{
			Type:        TypeMode,
			Retrievable: true,
			Parameters: Parameters{
				Instance: InstanceProgram,
				Modes:    modes,
			},
		},
		{
			Type:        TypeColorSetting,
			Retrievable: true,
			Parameters: Parameters{
				ColorModel: InstanceHSV,
			},
		},
	}
}

// CopyDescriptors returns a deep copy of ds.
func CopyDescriptors(ds []Descriptor) []Descriptor {
	if ds == nil {
		return nil
	}
	out := make([]Descriptor, len(ds))
	for i, d := range ds {
		out[i] = d
		if d.Parameters.Range != nil {
			r := *d.Parameters.Range
			out[i].Parameters.Range = &r
		}
		if d.Parameters.Modes != nil {
			out[i].Parameters.Modes = append([]ModeOption(nil), d.Parameters.Modes...)
		}
	}
	return out
}
