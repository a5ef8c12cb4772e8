package history

import (
	"sort"
	"sync"
	"time"
)

// MemoryRecorder keeps cycle records in memory, dropping the oldest beyond capacity
type MemoryRecorder struct {
	records  []CycleRecord
	capacity int
	nextID   int64
	mu       sync.RWMutex
}

// NewMemoryRecorder creates an in-memory recorder. capacity <= 0 means unbounded.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	return &MemoryRecorder{
		records:  make([]CycleRecord, 0),
		capacity: capacity,
	}
}

// Record stores a cycle record
func (m *MemoryRecorder) Record(record CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	m.nextID++
	if record.ID == 0 {
		record.ID = m.nextID
	}

	m.records = append(m.records, record)
	if m.capacity > 0 && len(m.records) > m.capacity {
		m.records = m.records[len(m.records)-m.capacity:]
	}
	return nil
}

// List returns records matching filter, newest first
func (m *MemoryRecorder) List(filter Filter) ([]CycleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := make([]CycleRecord, 0, len(m.records))
	for _, record := range m.records {
		if matchesFilter(record, filter) {
			filtered = append(filtered, record)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Cycle > filtered[j].Cycle
	})

	return paginate(filtered, filter), nil
}

// Summary aggregates records matching filter
func (m *MemoryRecorder) Summary(filter Filter) (Summary, error) {
	filter.Limit, filter.Offset = 0, 0
	records, err := m.List(filter)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// Close is a no-op
func (m *MemoryRecorder) Close() error {
	return nil
}

func matchesFilter(record CycleRecord, filter Filter) bool {
	if filter.From != nil && record.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && record.Timestamp.After(*filter.To) {
		return false
	}
	if filter.ValidOnly && !record.UtilityValid {
		return false
	}
	return true
}

func paginate(records []CycleRecord, filter Filter) []CycleRecord {
	if filter.Limit <= 0 && filter.Offset <= 0 {
		return records
	}
	start := filter.Offset
	if start >= len(records) {
		return []CycleRecord{}
	}
	end := len(records)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return records[start:end]
}

// summarize expects records newest first
func summarize(records []CycleRecord) Summary {
	var s Summary
	first := true
	for _, r := range records {
		s.TotalCycles++
		if r.UtilityReported {
			s.ReportedCycles++
		}
		if !r.UtilityValid {
			continue
		}
		s.ValidCycles++
		if first {
			s.LastAverage = r.AverageUtility
			s.MaxCycleUtility = r.CycleUtility
			s.MinCycleUtility = r.CycleUtility
			first = false
			continue
		}
		if r.CycleUtility > s.MaxCycleUtility {
			s.MaxCycleUtility = r.CycleUtility
		}
		if r.CycleUtility < s.MinCycleUtility {
			s.MinCycleUtility = r.CycleUtility
		}
	}
	return s
}
