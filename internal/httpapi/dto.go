package httpapi

import (
	"fmt"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/lifecycle"
	"github.com/sensorhost/sensorhost/internal/module"
	"github.com/sensorhost/sensorhost/internal/registry"
)

// ConnParamDescriptorDTO describes one connection parameter the driver
// wants before connect-device can be called.
type ConnParamDescriptorDTO struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func connParamsToDTO(descs []module.ConnParamDescriptor) []ConnParamDescriptorDTO {
	out := make([]ConnParamDescriptorDTO, len(descs))
	for i, d := range descs {
		out[i] = ConnParamDescriptorDTO{Name: d.Name, Type: d.Type.String()}
	}
	return out
}

// ConfValueDTO is the wire shape of module.ConfValue: exactly one of the
// fields matching Kind is meaningful.
type ConfValueDTO struct {
	Kind       string     `json:"kind"`
	Str        *string    `json:"str,omitempty"`
	Int        *int64     `json:"int,omitempty"`
	IntRange   *[2]int64  `json:"int_range,omitempty"`
	Float      *float64   `json:"float,omitempty"`
	FloatRange *[2]float64 `json:"float_range,omitempty"`
	JSON       *string    `json:"json,omitempty"`
	ChoiceIdx  *uint32    `json:"choice_index,omitempty"`
}

func leafKindFromString(s string) (module.LeafKind, error) {
	switch s {
	case "string":
		return module.LeafString, nil
	case "int":
		return module.LeafInt, nil
	case "int_range":
		return module.LeafIntRange, nil
	case "float":
		return module.LeafFloat, nil
	case "float_range":
		return module.LeafFloatRange, nil
	case "json":
		return module.LeafJSON, nil
	case "choice_list":
		return module.LeafChoiceList, nil
	default:
		return 0, apperr.New(apperr.InvalidInput, fmt.Sprintf("unknown config value kind %q", s))
	}
}

func leafKindToString(k module.LeafKind) string {
	switch k {
	case module.LeafString:
		return "string"
	case module.LeafInt:
		return "int"
	case module.LeafIntRange:
		return "int_range"
	case module.LeafFloat:
		return "float"
	case module.LeafFloatRange:
		return "float_range"
	case module.LeafJSON:
		return "json"
	case module.LeafChoiceList:
		return "choice_list"
	default:
		return "unknown"
	}
}

func (dto *ConfValueDTO) toModule() (*module.ConfValue, error) {
	if dto == nil {
		return nil, nil
	}
	kind, err := leafKindFromString(dto.Kind)
	if err != nil {
		return nil, err
	}
	v := &module.ConfValue{Kind: kind}
	switch kind {
	case module.LeafString:
		if dto.Str != nil {
			v.Str = *dto.Str
		}
	case module.LeafInt:
		if dto.Int != nil {
			v.Int = *dto.Int
		}
	case module.LeafIntRange:
		if dto.IntRange != nil {
			v.IntRange = *dto.IntRange
		}
	case module.LeafFloat:
		if dto.Float != nil {
			v.Float = *dto.Float
		}
	case module.LeafFloatRange:
		if dto.FloatRange != nil {
			v.FloatRange = *dto.FloatRange
		}
	case module.LeafJSON:
		if dto.JSON != nil {
			v.JSON = *dto.JSON
		}
	case module.LeafChoiceList:
		if dto.ChoiceIdx != nil {
			v.ChoiceIdx = *dto.ChoiceIdx
		}
	}
	return v, nil
}

// ConfEntryDTO pairs a config leaf ID with an optional submitted value.
type ConfEntryDTO struct {
	ID    uint32        `json:"id"`
	Value *ConfValueDTO `json:"value,omitempty"`
}

func entriesToModule(entries []ConfEntryDTO) ([]module.ConfEntry, error) {
	out := make([]module.ConfEntry, len(entries))
	for i, e := range entries {
		v, err := e.Value.toModule()
		if err != nil {
			return nil, err
		}
		out[i] = module.ConfEntry{ID: e.ID, Value: v}
	}
	return out, nil
}

// ConfigLeafDTO mirrors module.ConfigLeaf for JSON transport; the Neq/NeqF
// constraints are not carried.
type ConfigLeafDTO struct {
	ID       uint32 `json:"id"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`

	Default    *string `json:"default,omitempty"`
	MinLen     *int    `json:"min_len,omitempty"`
	MaxLen     *int    `json:"max_len,omitempty"`
	MatchRegex *string `json:"match_regex,omitempty"`

	DefaultInt  *int64 `json:"default_int,omitempty"`
	DefaultFrom *int64 `json:"default_from,omitempty"`
	DefaultTo   *int64 `json:"default_to,omitempty"`
	Lt          *int64 `json:"lt,omitempty"`
	Gt          *int64 `json:"gt,omitempty"`
	MinInt      int64  `json:"min_int,omitempty"`
	MaxInt      int64  `json:"max_int,omitempty"`

	DefaultFloat     *float64 `json:"default_float,omitempty"`
	DefaultFloatFrom *float64 `json:"default_float_from,omitempty"`
	DefaultFloatTo   *float64 `json:"default_float_to,omitempty"`
	LtF              *float64 `json:"lt_float,omitempty"`
	GtF              *float64 `json:"gt_float,omitempty"`
	MinFloat         float64  `json:"min_float,omitempty"`
	MaxFloat         float64  `json:"max_float,omitempty"`

	DefaultJSON *string `json:"default_json,omitempty"`

	DefaultIndex *uint32  `json:"default_index,omitempty"`
	Choices      []string `json:"choices,omitempty"`
}

func leafToDTO(l *module.ConfigLeaf) *ConfigLeafDTO {
	if l == nil {
		return nil
	}
	return &ConfigLeafDTO{
		ID:               l.ID,
		Kind:             leafKindToString(l.Kind),
		Required:         l.Required,
		Default:          l.Default,
		MinLen:           l.MinLen,
		MaxLen:           l.MaxLen,
		MatchRegex:       l.MatchRegex,
		DefaultInt:       l.DefaultInt,
		DefaultFrom:      l.DefaultFrom,
		DefaultTo:        l.DefaultTo,
		Lt:               l.Lt,
		Gt:               l.Gt,
		MinInt:           l.MinInt,
		MaxInt:           l.MaxInt,
		DefaultFloat:     l.DefaultFloat,
		DefaultFloatFrom: l.DefaultFloatFrom,
		DefaultFloatTo:   l.DefaultFloatTo,
		LtF:              l.LtF,
		GtF:              l.GtF,
		MinFloat:         l.MinFloat,
		MaxFloat:         l.MaxFloat,
		DefaultJSON:      l.DefaultJSON,
		DefaultIndex:     l.DefaultIndex,
		Choices:          l.Choices,
	}
}

// ConfigInfoDTO mirrors module.ConfigInfo: exactly one of Section or Leaf
// is set.
type ConfigInfoDTO struct {
	Name    string          `json:"name"`
	Section []ConfigInfoDTO `json:"section,omitempty"`
	Leaf    *ConfigLeafDTO  `json:"leaf,omitempty"`
}

func configInfoToDTO(tree []module.ConfigInfo) []ConfigInfoDTO {
	out := make([]ConfigInfoDTO, len(tree))
	for i, n := range tree {
		out[i] = ConfigInfoDTO{
			Name:    n.Name,
			Section: configInfoToDTO(n.Section),
			Leaf:    leafToDTO(n.Leaf),
		}
	}
	return out
}

// ColumnDTO describes one sensor data column.
type ColumnDTO struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SensorTypeInfoDTO describes one sensor a device exposes.
type SensorTypeInfoDTO struct {
	Name      string      `json:"name"`
	BindingID string      `json:"binding_id"`
	Columns   []ColumnDTO `json:"columns"`
}

func sensorToDTO(s registry.Sensor) SensorTypeInfoDTO {
	cols := make([]ColumnDTO, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = ColumnDTO{Name: c.Name, Type: c.Type.String()}
	}
	return SensorTypeInfoDTO{Name: s.Name, BindingID: s.BindingID, Columns: cols}
}

func sensorsToDTO(sensors []registry.Sensor) []SensorTypeInfoDTO {
	out := make([]SensorTypeInfoDTO, len(sensors))
	for i, s := range sensors {
		out[i] = sensorToDTO(s)
	}
	return out
}

// DeviceListItemDTO is one entry in the get-device-list response.
type DeviceListItemDTO struct {
	ID          uint32 `json:"id"`
	DisplayName string `json:"display_name"`
}

func deviceListingToDTO(listings []lifecycle.DeviceListing) []DeviceListItemDTO {
	out := make([]DeviceListItemDTO, len(listings))
	for i, l := range listings {
		out[i] = DeviceListItemDTO{ID: uint32(l.ID), DisplayName: l.DisplayName}
	}
	return out
}
