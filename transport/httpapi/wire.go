package httpapi

import (
	"fmt"
	"strconv"

	"github.com/snow-ghost/adaptmgr/core"
)

// MetricsResponse is the body served by the metrics endpoint
type MetricsResponse struct {
	QRs []core.MetricObservation `json:"qrs_in_tree"`
}

// KnobsResponse is the body served by the knobs endpoint
type KnobsResponse struct {
	VariableParameters []core.Knob `json:"variable_parameters"`
}

// SetBlackboardRequest writes one key on the blackboard
type SetBlackboardRequest struct {
	KeyName    string `json:"key_name"`
	Value      string `json:"value"`
	ScriptCode string `json:"script_code"`
}

// SetBlackboardResponse acknowledges a blackboard write
type SetBlackboardResponse struct {
	Success bool `json:"success"`
}

// BlackboardScript renders the assignment script the blackboard executes
func BlackboardScript(key, value string) string {
	return fmt.Sprintf("%s:='%s'", key, value)
}

// FormatUtility renders a utility with the shortest exact decimal form
func FormatUtility(u float64) string {
	return strconv.FormatFloat(u, 'g', -1, 64)
}
