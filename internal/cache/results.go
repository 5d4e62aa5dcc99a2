package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aipop/internal/types"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	suite_id TEXT NOT NULL,
	case_id TEXT NOT NULL,
	status TEXT NOT NULL,
	recorded_ts INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_suite ON results(suite_id, recorded_ts);
`

// StoredResult is one persisted verification outcome.
type StoredResult struct {
	SuiteID    string           `json:"suite_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Result     types.TestResult `json:"result"`
}

// ResultStore keeps per-case verification results across runs. It shares the
// response cache file so one sqlite file carries all verification state.
type ResultStore struct {
	path string
	now  func() time.Time
}

// NewResultStore opens (creating if needed) the result store at path. An
// empty path defaults to the response cache location.
func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		path = filepath.Join(".aipop", "response_cache.db")
	}
	s := &ResultStore{path: path, now: time.Now}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create result store directory: %w", err)
		}
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if _, err := db.Exec(resultsSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize result store schema: %w", err)
	}
	return s, nil
}

func (s *ResultStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Record appends one result.
func (s *ResultStore) Record(suiteID string, res types.TestResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("result store marshal: %w", err)
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO results (suite_id, case_id, status, recorded_ts, payload)
		VALUES (?, ?, ?, ?, ?)`,
		suiteID, res.CaseID, string(res.Status), s.now().Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("result store write: %w", err)
	}
	return nil
}

// Recent returns the newest results, most recent first.
func (s *ResultStore) Recent(limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 50
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT suite_id, recorded_ts, payload FROM results
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("result store read: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var (
			sr      StoredResult
			ts      int64
			payload string
		)
		if err := rows.Scan(&sr.SuiteID, &ts, &payload); err != nil {
			return nil, fmt.Errorf("result store scan: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &sr.Result); err != nil {
			return nil, fmt.Errorf("result store payload: %w", err)
		}
		sr.RecordedAt = time.Unix(ts, 0)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// StatusCounts aggregates stored results by status, optionally scoped to one
// suite. An empty suiteID counts everything.
func (s *ResultStore) StatusCounts(suiteID string) (map[string]int, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `SELECT status, COUNT(*) FROM results GROUP BY status`
	args := []interface{}{}
	if suiteID != "" {
		query = `SELECT status, COUNT(*) FROM results WHERE suite_id = ? GROUP BY status`
		args = append(args, suiteID)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("result store counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("result store scan: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
