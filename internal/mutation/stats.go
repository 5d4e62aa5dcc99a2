package mutation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS mutation_stats (
	mutation_type TEXT PRIMARY KEY,
	attempts INTEGER NOT NULL DEFAULT 0,
	successes INTEGER NOT NULL DEFAULT 0
);
`

// StatsStore persists per-mutator attempt and success counts. Like the
// caches, it opens a short-lived connection per operation so it can be
// shared across workers.
type StatsStore struct {
	path string
}

// NewStatsStore opens (creating if needed) the store at path. Empty path
// defaults to .aipop/mutation_stats.db.
func NewStatsStore(path string) (*StatsStore, error) {
	if path == "" {
		path = filepath.Join(".aipop", "mutation_stats.db")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create stats directory: %w", err)
		}
	}
	s := &StatsStore{path: path}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if _, err := db.Exec(statsSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize mutation stats schema: %w", err)
	}
	return s, nil
}

func (s *StatsStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mutation stats: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Record accounts one attempt of mutationType.
func (s *StatsStore) Record(mutationType string, success bool) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	succ := 0
	if success {
		succ = 1
	}
	_, err = db.Exec(`
		INSERT INTO mutation_stats (mutation_type, attempts, successes) VALUES (?, 1, ?)
		ON CONFLICT(mutation_type) DO UPDATE SET
			attempts = attempts + 1,
			successes = successes + excluded.successes`,
		mutationType, succ)
	if err != nil {
		return fmt.Errorf("mutation stats write: %w", err)
	}
	return nil
}

// SuccessRates returns success/attempts per mutation type.
func (s *StatsStore) SuccessRates() (map[string]float64, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT mutation_type, attempts, successes FROM mutation_stats`)
	if err != nil {
		return nil, fmt.Errorf("mutation stats read: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var mt string
		var attempts, successes int
		if err := rows.Scan(&mt, &attempts, &successes); err != nil {
			return nil, err
		}
		if attempts > 0 {
			rates[mt] = float64(successes) / float64(attempts)
		}
	}
	return rates, rows.Err()
}

// AnalyticsEntry is one row of the analytics view.
type AnalyticsEntry struct {
	MutationType string  `json:"mutation_type"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
}

// Analytics summarizes the top-performing mutations over recorded history,
// best first.
func (s *StatsStore) Analytics() ([]AnalyticsEntry, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT mutation_type, attempts, successes FROM mutation_stats WHERE attempts > 0`)
	if err != nil {
		return nil, fmt.Errorf("mutation stats read: %w", err)
	}
	defer rows.Close()

	var out []AnalyticsEntry
	for rows.Next() {
		var e AnalyticsEntry
		if err := rows.Scan(&e.MutationType, &e.Attempts, &e.Successes); err != nil {
			return nil, err
		}
		e.SuccessRate = float64(e.Successes) / float64(e.Attempts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Attempts > out[j].Attempts
	})
	return out, nil
}
