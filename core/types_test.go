package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		wire  string
		text  string
	}{
		{"bool", BoolValue(true), `{"type":"bool","bool_value":true}`, "true"},
		{"integer", IntValue(-3), `{"type":"integer","integer_value":-3}`, "-3"},
		{"double", DoubleValue(0.5), `{"type":"double","double_value":0.5}`, "0.5"},
		{"string", StringValue("navfn"), `{"type":"string","string_value":"navfn"}`, "navfn"},
		{"zero int", IntValue(0), `{"type":"integer"}`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value)
			require.NoError(t, err)
			require.JSONEq(t, tt.wire, string(b))

			var got Value
			require.NoError(t, json.Unmarshal([]byte(tt.wire), &got))
			require.Equal(t, tt.value, got)
			require.Equal(t, tt.text, got.String())
		})
	}

	require.Equal(t, "<complex>", Value{Kind: "complex"}.String())
}

func TestKnobDecodesFromService(t *testing.T) {
	raw := `{"name":"max_speed","node_name":"controller_server","possible_values":[
		{"type":"double","double_value":0.2},{"type":"double","double_value":0.8}]}`

	var k Knob
	require.NoError(t, json.Unmarshal([]byte(raw), &k))
	require.Equal(t, "max_speed", k.Name)
	require.Equal(t, "controller_server", k.OwnerID)
	require.Equal(t, []Value{DoubleValue(0.2), DoubleValue(0.8)}, k.AdmissibleValues)
}

func TestConfigurationLookup(t *testing.T) {
	cfg := Configuration{
		Assignments: []ParameterAssignment{
			{KnobName: "a", Value: IntValue(1), OwnerID: "n1"},
			{KnobName: "b", Value: StringValue("x"), OwnerID: "n2"},
		},
		OwnerIDs: []string{"n1", "n2"},
	}

	got, ok := cfg.Lookup("b")
	require.True(t, ok)
	require.Equal(t, "n2", got.OwnerID)

	_, ok = cfg.Lookup("c")
	require.False(t, ok)
}

func TestAdaptationStateJSON(t *testing.T) {
	state := AdaptationState{
		CycleID:   "c-1",
		Cycle:     4,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		QRValues:  []QRValue{{Name: "safety", Fulfilment: 0.25}},
		PossibleConfigurations: []Configuration{{
			Assignments: []ParameterAssignment{{KnobName: "a", Value: BoolValue(false), OwnerID: "n1"}},
			OwnerIDs:    []string{"n1"},
		}},
		AverageUtility: 0.1,
	}

	b, err := json.Marshal(state)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &fields))
	require.Contains(t, fields, "qr_values")
	require.Contains(t, fields, "system_possible_configurations")
	require.JSONEq(t, `[{"name":"safety","qr_fulfilment":0.25}]`, string(fields["qr_values"]))

	var got AdaptationState
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, state, got)
}
