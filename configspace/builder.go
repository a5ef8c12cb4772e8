// Package configspace enumerates every legal configuration of a knob catalogue.
package configspace

import "github.com/snow-ghost/adaptmgr/core"

// Build returns the Cartesian product of the admissible values of knobs.
//
// Knobs without admissible values are dropped. Knob order is the dimension
// order and each knob's declared value order is the iteration order within
// its dimension, the last knob varying fastest. An empty or all-empty
// catalogue yields an empty, non-nil result. The whole space is materialized.
func Build(knobs []core.Knob) []core.Configuration {
	usable := make([]core.Knob, 0, len(knobs))
	total := 1
	for _, k := range knobs {
		if len(k.AdmissibleValues) == 0 {
			continue
		}
		usable = append(usable, k)
		total *= len(k.AdmissibleValues)
	}
	if len(usable) == 0 {
		return []core.Configuration{}
	}

	configs := make([]core.Configuration, 0, total)
	idx := make([]int, len(usable))
	for {
		configs = append(configs, assemble(usable, idx))

		// odometer increment, rightmost digit first
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(usable[pos].AdmissibleValues) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return configs
		}
	}
}

func assemble(knobs []core.Knob, idx []int) core.Configuration {
	c := core.Configuration{
		Assignments: make([]core.ParameterAssignment, len(knobs)),
		OwnerIDs:    make([]string, len(knobs)),
	}
	for i, k := range knobs {
		c.Assignments[i] = core.ParameterAssignment{
			KnobName: k.Name,
			Value:    k.AdmissibleValues[idx[i]],
			OwnerID:  k.OwnerID,
		}
		c.OwnerIDs[i] = k.OwnerID
	}
	return c
}

// Size returns the number of configurations Build would produce.
func Size(knobs []core.Knob) int {
	total, usable := 1, false
	for _, k := range knobs {
		if len(k.AdmissibleValues) == 0 {
			continue
		}
		total *= len(k.AdmissibleValues)
		usable = true
	}
	if !usable {
		return 0
	}
	return total
}

// Filter returns the configurations accepted by keep, preserving order.
// A nil keep returns configs unchanged.
func Filter(configs []core.Configuration, keep core.ConfigurationFilter) []core.Configuration {
	if keep == nil {
		return configs
	}
	out := make([]core.Configuration, 0, len(configs))
	for _, c := range configs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// AllOf combines filters; a configuration must pass every one of them.
func AllOf(filters ...core.ConfigurationFilter) core.ConfigurationFilter {
	return func(c core.Configuration) bool {
		for _, f := range filters {
			if f != nil && !f(c) {
				return false
			}
		}
		return true
	}
}
