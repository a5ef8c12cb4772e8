package configspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/adaptmgr/core"
)

func knob(name, owner string, values ...core.Value) core.Knob {
	return core.Knob{Name: name, OwnerID: owner, AdmissibleValues: values}
}

func TestBuildCrossProduct(t *testing.T) {
	knobs := []core.Knob{
		knob("max_speed", "controller", core.DoubleValue(0.1), core.DoubleValue(0.3)),
		knob("planner", "nav2", core.StringValue("a"), core.StringValue("b"), core.StringValue("c")),
	}

	configs := Build(knobs)
	require.Len(t, configs, 6)
	require.Equal(t, 6, Size(knobs))

	seen := make(map[[2]string]bool)
	for _, c := range configs {
		require.Len(t, c.Assignments, 2)
		require.Equal(t, []string{"controller", "nav2"}, c.OwnerIDs)
		require.Equal(t, "max_speed", c.Assignments[0].KnobName)
		require.Equal(t, "controller", c.Assignments[0].OwnerID)
		require.Equal(t, "planner", c.Assignments[1].KnobName)
		require.Equal(t, "nav2", c.Assignments[1].OwnerID)

		pair := [2]string{c.Assignments[0].Value.String(), c.Assignments[1].Value.String()}
		require.False(t, seen[pair], "duplicate pair %v", pair)
		seen[pair] = true
	}
	require.Len(t, seen, 6)
}

func TestBuildOdometerOrder(t *testing.T) {
	knobs := []core.Knob{
		knob("a", "n1", core.IntValue(1), core.IntValue(2)),
		knob("b", "n2", core.StringValue("x"), core.StringValue("y")),
	}

	var got []string
	for _, c := range Build(knobs) {
		got = append(got, c.Assignments[0].Value.String()+c.Assignments[1].Value.String())
	}
	require.Equal(t, []string{"1x", "1y", "2x", "2y"}, got)
}

func TestBuildDropsEmptyKnobs(t *testing.T) {
	knobs := []core.Knob{
		knob("unused", "n1"),
		knob("mode", "n2", core.StringValue("a"), core.StringValue("b")),
	}

	configs := Build(knobs)
	require.Len(t, configs, 2)
	for _, c := range configs {
		require.Len(t, c.Assignments, 1)
		require.Equal(t, "mode", c.Assignments[0].KnobName)
		require.Equal(t, []string{"n2"}, c.OwnerIDs)
	}
}

func TestBuildEmptyCatalogue(t *testing.T) {
	for _, knobs := range [][]core.Knob{nil, {}, {knob("a", "n"), knob("b", "n")}} {
		configs := Build(knobs)
		require.NotNil(t, configs)
		require.Empty(t, configs)
		require.Equal(t, 0, Size(knobs))
	}
}

func TestBuildSingleKnob(t *testing.T) {
	configs := Build([]core.Knob{knob("on", "n", core.BoolValue(true), core.BoolValue(false))})
	require.Len(t, configs, 2)
	require.True(t, configs[0].Assignments[0].Value.Bool)
	require.False(t, configs[1].Assignments[0].Value.Bool)
}

func TestBuildKeepsDuplicateValues(t *testing.T) {
	configs := Build([]core.Knob{knob("a", "n", core.IntValue(1), core.IntValue(1))})
	require.Len(t, configs, 2)
}

func TestBuildThreeDimensions(t *testing.T) {
	knobs := []core.Knob{
		knob("a", "n1", core.IntValue(1), core.IntValue(2)),
		knob("b", "n2", core.IntValue(1), core.IntValue(2), core.IntValue(3)),
		knob("c", "n3", core.IntValue(1), core.IntValue(2), core.IntValue(3), core.IntValue(4)),
	}
	configs := Build(knobs)
	require.Len(t, configs, 24)
	last := configs[len(configs)-1]
	require.Equal(t, int64(2), last.Assignments[0].Value.Int)
	require.Equal(t, int64(3), last.Assignments[1].Value.Int)
	require.Equal(t, int64(4), last.Assignments[2].Value.Int)
}

func TestFilter(t *testing.T) {
	configs := Build([]core.Knob{
		knob("speed", "n1", core.IntValue(1), core.IntValue(2)),
		knob("mode", "n2", core.StringValue("safe"), core.StringValue("fast")),
	})

	noFastAtLowSpeed := func(c core.Configuration) bool {
		speed, _ := c.Lookup("speed")
		mode, _ := c.Lookup("mode")
		return !(speed.Value.Int == 1 && mode.Value.Str == "fast")
	}

	kept := Filter(configs, noFastAtLowSpeed)
	require.Len(t, kept, 3)
	require.Len(t, Filter(configs, nil), 4)

	onlySafe := func(c core.Configuration) bool {
		mode, _ := c.Lookup("mode")
		return mode.Value.Str == "safe"
	}
	require.Len(t, Filter(configs, AllOf(noFastAtLowSpeed, onlySafe)), 2)
}
