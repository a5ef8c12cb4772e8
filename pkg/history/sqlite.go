package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRecorder stores cycle records in a SQLite database
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (or creates) the database at dbPath
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	recorder := &SQLiteRecorder{db: db}
	if err := recorder.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return recorder, nil
}

// createTable creates the cycles table
func (s *SQLiteRecorder) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		cycle_utility REAL NOT NULL,
		average_utility REAL NOT NULL,
		utility_valid INTEGER NOT NULL,
		utility_reported INTEGER NOT NULL,
		qr_count INTEGER NOT NULL,
		knob_count INTEGER NOT NULL,
		configurations INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_timestamp ON cycles(timestamp);
	CREATE INDEX IF NOT EXISTS idx_cycles_cycle ON cycles(cycle);
	`

	_, err := s.db.Exec(query)
	return err
}

// Record stores a cycle record
func (s *SQLiteRecorder) Record(record CycleRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	query := `
	INSERT INTO cycles (
		cycle_id, cycle, timestamp, cycle_utility, average_utility,
		utility_valid, utility_reported, qr_count, knob_count, configurations
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		record.CycleID,
		int64(record.Cycle),
		record.Timestamp,
		record.CycleUtility,
		record.AverageUtility,
		record.UtilityValid,
		record.UtilityReported,
		record.QRCount,
		record.KnobCount,
		record.Configurations,
	)
	return err
}

// List returns records matching filter, newest first
func (s *SQLiteRecorder) List(filter Filter) ([]CycleRecord, error) {
	query, args := s.buildQuery(filter)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]CycleRecord, 0)
	for rows.Next() {
		var record CycleRecord
		var cycle int64
		err := rows.Scan(
			&record.ID,
			&record.CycleID,
			&cycle,
			&record.Timestamp,
			&record.CycleUtility,
			&record.AverageUtility,
			&record.UtilityValid,
			&record.UtilityReported,
			&record.QRCount,
			&record.KnobCount,
			&record.Configurations,
		)
		if err != nil {
			return nil, err
		}
		record.Cycle = uint64(cycle)
		records = append(records, record)
	}

	return records, rows.Err()
}

// Summary aggregates records matching filter
func (s *SQLiteRecorder) Summary(filter Filter) (Summary, error) {
	filter.Limit, filter.Offset = 0, 0
	records, err := s.List(filter)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// Close closes the database
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

// buildQuery builds a SQL query with filters
func (s *SQLiteRecorder) buildQuery(filter Filter) (string, []interface{}) {
	whereClause, args := s.buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT
			id, cycle_id, cycle, timestamp, cycle_utility, average_utility,
			utility_valid, utility_reported, qr_count, knob_count, configurations
		FROM cycles
		%s
		ORDER BY cycle DESC
	`, whereClause)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	return query, args
}

// buildWhereClause builds WHERE clause with filters
func (s *SQLiteRecorder) buildWhereClause(filter Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.To)
	}
	if filter.ValidOnly {
		conditions = append(conditions, "utility_valid = 1")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
