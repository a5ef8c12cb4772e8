package controller

// State is a phase of the adaptation cycle
type State int32

const (
	Idle State = iota
	FetchingMetrics
	Aggregating
	ReportingUtility
	FetchingKnobs
	BuildingConfigs
	Publishing
)

var stateNames = [...]string{
	Idle:             "idle",
	FetchingMetrics:  "fetching_metrics",
	Aggregating:      "aggregating",
	ReportingUtility: "reporting_utility",
	FetchingKnobs:    "fetching_knobs",
	BuildingConfigs:  "building_configs",
	Publishing:       "publishing",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Cycle outcomes as recorded in metrics and logs
const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
)

// Remote service names used for breakers, retries and spans
const (
	ServiceMetrics    = "metrics"
	ServiceKnobs      = "knobs"
	ServiceBlackboard = "blackboard"
)
