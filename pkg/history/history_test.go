package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, r Recorder) time.Time {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []CycleRecord{
		{CycleID: "c1", Cycle: 1, Timestamp: base, CycleUtility: 0.2, AverageUtility: 0.2, UtilityValid: true, UtilityReported: true, Configurations: 6},
		{CycleID: "c2", Cycle: 2, Timestamp: base.Add(8 * time.Second), UtilityValid: false, Configurations: 6},
		{CycleID: "c3", Cycle: 3, Timestamp: base.Add(16 * time.Second), CycleUtility: 0.6, AverageUtility: 0.4, UtilityValid: true, UtilityReported: false, Configurations: 4},
	}
	for _, rec := range records {
		require.NoError(t, r.Record(rec))
	}
	return base
}

func exerciseRecorder(t *testing.T, r Recorder) {
	base := seed(t, r)

	all, err := r.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(3), all[0].Cycle)
	require.Equal(t, "c3", all[0].CycleID)
	require.Equal(t, 4, all[0].Configurations)

	valid, err := r.List(Filter{ValidOnly: true})
	require.NoError(t, err)
	require.Len(t, valid, 2)

	page, err := r.List(Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Cycle)

	from := base.Add(time.Second)
	recent, err := r.List(Filter{From: &from})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	summary, err := r.Summary(Filter{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.TotalCycles)
	require.Equal(t, int64(2), summary.ValidCycles)
	require.Equal(t, int64(1), summary.ReportedCycles)
	require.Equal(t, 0.4, summary.LastAverage)
	require.Equal(t, 0.6, summary.MaxCycleUtility)
	require.Equal(t, 0.2, summary.MinCycleUtility)
}

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder(0)
	defer r.Close()
	exerciseRecorder(t, r)
}

func TestMemoryRecorderCapacity(t *testing.T) {
	r := NewMemoryRecorder(2)
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Record(CycleRecord{Cycle: uint64(i)}))
	}

	records, err := r.List(Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(5), records[0].Cycle)
	require.Equal(t, uint64(4), records[1].Cycle)
	require.Equal(t, int64(5), records[0].ID)
	require.False(t, records[0].Timestamp.IsZero())
}

func TestSQLiteRecorder(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer r.Close()
	exerciseRecorder(t, r)
}

func TestNewDriver(t *testing.T) {
	r, err := New("memory", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryRecorder{}, r)

	_, err = New("badger", "")
	var unknown *UnknownDriverError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "badger", unknown.Driver)
}
