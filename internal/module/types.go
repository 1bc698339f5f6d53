// Package module implements the Module ABI & Marshaller and the Module
// Instance: the stable C function table that driver shared libraries
// implement, the marshalling rules that move typed values across that
// boundary, and the safe, polymorphic wrapper the rest of the host programs
// against (Driver). A driver is any shared library exporting mod_version
// and functions(); this package also ships a pure-Go fake (moduletest) that
// satisfies the same Driver interface for tests that must not load native
// code.
package module

import (
	"fmt"
	"time"
)

// ABIVersion is the function-table layout version this host understands.
// Bumping it is a deliberate, backwards-incompatible change; the loader
// rejects any driver whose mod_version() call returns a different value.
const ABIVersion uint8 = 1

// ComError is the non-fatal status code a driver returns from
// connect_device, configure_device, and stop.
type ComError uint8

const (
	ComOK ComError = iota
	ComConnectionError
	ComInvalidArgument
	ComUnknown ComError = 255
)

func comErrorFromC(code uint8) ComError {
	switch code {
	case 0:
		return ComOK
	case 1:
		return ComConnectionError
	case 2:
		return ComInvalidArgument
	default:
		return ComUnknown
	}
}

func (c ComError) String() string {
	switch c {
	case ComOK:
		return "ok"
	case ComConnectionError:
		return "connection_error"
	case ComInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// SensorDataType is the tagged enum of value types a driver can declare for
// a sensor column, and the type every wire/storage value carries.
type SensorDataType uint8

const (
	TypeInt16 SensorDataType = iota
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeTimestamp
	TypeString
	TypeJSON
)

func (t SensorDataType) String() string {
	switch t {
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeTimestamp:
		return "timestamp"
	case TypeString:
		return "string"
	case TypeJSON:
		return "json"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ConnParamDescriptor describes one connection parameter a driver wants
// from the caller before connect_device is invoked (e.g. "endpoint: String").
type ConnParamDescriptor struct {
	Name string
	Type SensorDataType
}

// ConfigInfo is a node in the recursive configuration tree a driver reports
// from obtain_device_conf_info. Exactly one of Section or Leaf is set.
type ConfigInfo struct {
	Name    string
	Section []ConfigInfo
	Leaf    *ConfigLeaf
}

// ConfigLeaf is a terminal configuration entry. Kind selects which of the
// constraint fields are meaningful; ID is unique within the owning tree and
// is echoed back in ConfEntry.ID when the caller submits values.
type ConfigLeaf struct {
	ID       uint32
	Kind     LeafKind
	Required bool

	// String
	Default    *string
	MinLen     *int
	MaxLen     *int
	MatchRegex *string

	// Int / IntRange
	DefaultInt  *int64
	DefaultFrom *int64
	DefaultTo   *int64
	Lt, Gt, Neq *int64
	MinInt, MaxInt int64

	// Float / FloatRange
	DefaultFloat     *float64
	DefaultFloatFrom *float64
	DefaultFloatTo   *float64
	LtF, GtF, NeqF   *float64
	MinFloat, MaxFloat float64

	// JSON
	DefaultJSON *string

	// ChoiceList
	DefaultIndex *uint32
	Choices      []string
}

// LeafKind selects the ConfigLeaf variant.
type LeafKind uint8

const (
	LeafString LeafKind = iota
	LeafInt
	LeafIntRange
	LeafFloat
	LeafFloatRange
	LeafJSON
	LeafChoiceList
)

// ConfValue is the tagged value a caller submits for a ConfigLeaf or a
// connection parameter. Exactly one field is meaningful, selected by Kind.
type ConfValue struct {
	Kind LeafKind

	Str        string
	Int        int64
	IntRange   [2]int64
	Float      float64
	FloatRange [2]float64
	JSON       string
	ChoiceIdx  uint32
}

// ConfEntry pairs a ConfigLeaf's ID with an optional submitted value; a nil
// Value means "not provided" and is only legal when the leaf isn't Required.
type ConfEntry struct {
	ID    uint32
	Value *ConfValue
}

// Column describes one data field within a sensor, as reported by
// obtain_sensor_type_infos.
type Column struct {
	Name string
	Type SensorDataType
}

// SensorTypeInfo is one sensor a driver exposes, with its data columns.
type SensorTypeInfo struct {
	Name    string
	Columns []Column
}

// MessageKind discriminates the two Message variants a driver's message
// sink receives.
type MessageKind uint8

const (
	MessageSensor MessageKind = iota
	MessageCommon
)

// CommonLevel is the severity of a Common message, mapped to the host
// logger's levels by the Message Handler.
type CommonLevel uint8

const (
	LevelInfo CommonLevel = iota
	LevelWarn
	LevelError
)

// SensorValue is one named, typed data point within a Sensor message.
type SensorValue struct {
	Name string
	Type SensorDataType

	Int     int64
	Float   float64
	Str     string
	JSON    string
	Time    time.Time
}

// Message is a driver-to-host event delivered through the message sink
// installed by Start. Exactly one of Sensor/Common is populated, selected
// by Kind.
type Message struct {
	Kind MessageKind

	// MessageSensor
	SensorName string
	Data       []SensorValue

	// MessageCommon
	Level CommonLevel
	Text  string
}
