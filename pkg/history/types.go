package history

import (
	"time"
)

// CycleRecord summarizes one completed adaptation cycle
type CycleRecord struct {
	ID              int64     `json:"id" db:"id"`
	CycleID         string    `json:"cycle_id" db:"cycle_id"`
	Cycle           uint64    `json:"cycle" db:"cycle"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	CycleUtility    float64   `json:"cycle_utility" db:"cycle_utility"`
	AverageUtility  float64   `json:"average_utility" db:"average_utility"`
	UtilityValid    bool      `json:"utility_valid" db:"utility_valid"`
	UtilityReported bool      `json:"utility_reported" db:"utility_reported"`
	QRCount         int       `json:"qr_count" db:"qr_count"`
	KnobCount       int       `json:"knob_count" db:"knob_count"`
	Configurations  int       `json:"configurations" db:"configurations"`
}

// Summary aggregates a set of records
type Summary struct {
	TotalCycles     int64   `json:"total_cycles"`
	ValidCycles     int64   `json:"valid_cycles"`
	ReportedCycles  int64   `json:"reported_cycles"`
	LastAverage     float64 `json:"last_average"`
	MaxCycleUtility float64 `json:"max_cycle_utility"`
	MinCycleUtility float64 `json:"min_cycle_utility"`
}

// Filter narrows history queries
type Filter struct {
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	ValidOnly bool       `json:"valid_only,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// Recorder stores cycle records
type Recorder interface {
	// Record stores a cycle record
	Record(record CycleRecord) error

	// List returns records matching filter, newest first
	List(filter Filter) ([]CycleRecord, error)

	// Summary aggregates records matching filter
	Summary(filter Filter) (Summary, error)

	// Close releases resources
	Close() error
}

// New opens the recorder named by driver: "memory" or "sqlite".
func New(driver, path string) (Recorder, error) {
	switch driver {
	case "", "memory":
		return NewMemoryRecorder(0), nil
	case "sqlite":
		return NewSQLiteRecorder(path)
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

// UnknownDriverError reports an unsupported history driver
type UnknownDriverError struct {
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return "unknown history driver: " + e.Driver
}
