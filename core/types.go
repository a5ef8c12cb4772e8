package core

import (
	"fmt"
	"strconv"
	"time"
)

// MetricObservation is one quality requirement measured in the current cycle.
type MetricObservation struct {
	Name     string  `json:"qr_name" yaml:"qr_name"`
	RawValue float64 `json:"metric" yaml:"metric"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// QRValue is the weighted, normalized contribution of one requirement to the cycle utility.
type QRValue struct {
	Name       string  `json:"name"`
	Fulfilment float64 `json:"qr_fulfilment"`
}

// ValueKind tags the scalar carried by a Value.
type ValueKind string

const (
	KindBool    ValueKind = "bool"
	KindInteger ValueKind = "integer"
	KindDouble  ValueKind = "double"
	KindString  ValueKind = "string"
)

// Value is an opaque admissible knob value. Only the field matching Kind is meaningful.
type Value struct {
	Kind   ValueKind `json:"type" yaml:"type"`
	Bool   bool      `json:"bool_value,omitempty" yaml:"bool_value,omitempty"`
	Int    int64     `json:"integer_value,omitempty" yaml:"integer_value,omitempty"`
	Double float64   `json:"double_value,omitempty" yaml:"double_value,omitempty"`
	Str    string    `json:"string_value,omitempty" yaml:"string_value,omitempty"`
}

func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value      { return Value{Kind: KindInteger, Int: i} }
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Double: f} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }

// String renders the scalar without its kind tag.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case KindString:
		return v.Str
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// Knob is a tunable parameter exposed by the subsystem identified by OwnerID.
type Knob struct {
	Name             string  `json:"name" yaml:"name"`
	OwnerID          string  `json:"node_name" yaml:"node_name"`
	AdmissibleValues []Value `json:"possible_values" yaml:"possible_values"`
}

// ParameterAssignment is one concrete choice for one knob.
type ParameterAssignment struct {
	KnobName string `json:"name"`
	Value    Value  `json:"value"`
	OwnerID  string `json:"node_name"`
}

// Configuration assigns exactly one value to every usable knob, in knob order.
// OwnerIDs[i] is the owner of Assignments[i].
type Configuration struct {
	Assignments []ParameterAssignment `json:"configuration_parameters"`
	OwnerIDs    []string              `json:"node_names"`
}

// Lookup returns the assignment for the named knob.
func (c Configuration) Lookup(knob string) (ParameterAssignment, bool) {
	for _, a := range c.Assignments {
		if a.KnobName == knob {
			return a, true
		}
	}
	return ParameterAssignment{}, false
}

// AdaptationState is the snapshot broadcast once per cycle.
type AdaptationState struct {
	CycleID                string          `json:"cycle_id"`
	Cycle                  uint64          `json:"cycle"`
	Timestamp              time.Time       `json:"timestamp"`
	QRValues               []QRValue       `json:"qr_values"`
	PossibleConfigurations []Configuration `json:"system_possible_configurations"`
	CycleUtility           float64         `json:"cycle_utility"`
	AverageUtility         float64         `json:"average_utility"`
	UtilityReported        bool            `json:"utility_reported"`
}
