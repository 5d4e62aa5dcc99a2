// Package cache memoizes expensive attack runs and raw model responses in
// single-file SQLite stores. Every operation opens a short-lived connection
// and closes it before returning, so concurrent workers coordinate only
// through the file itself.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"aipop/internal/types"
	"aipop/internal/version"
)

// ErrMiss is returned when no fresh entry exists for a key.
var ErrMiss = errors.New("cache miss")

// EnvCacheDB overrides the attack-cache file location.
const EnvCacheDB = "AIPOP_CACHE_DB"

// Default TTLs per method, in hours. Methods whose output depends on
// short-lived model behavior expire sooner; methods whose output is
// intrinsic to the target weights expire slower.
var defaultTTLHours = map[string]float64{
	"pair":    7 * 24,
	"gcg":     30 * 24,
	"autodan": 14 * 24,
}

// fallbackTTLHours covers methods without a tuned default.
const fallbackTTLHours = 7 * 24

// DefaultTTLHours returns the TTL policy for a method.
func DefaultTTLHours(method string) float64 {
	if ttl, ok := defaultTTLHours[method]; ok {
		return ttl
	}
	return fallbackTTLHours
}

const attackSchema = `
CREATE TABLE IF NOT EXISTS attack_cache (
	key TEXT PRIMARY KEY,
	method TEXT NOT NULL,
	implementation TEXT NOT NULL,
	core_version TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	ttl_hours REAL NOT NULL,
	payload JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attack_created ON attack_cache(created_ts);
CREATE INDEX IF NOT EXISTS idx_attack_method_version ON attack_cache(method, core_version);
`

// Stats summarizes cache contents for the stats subcommand.
type Stats struct {
	Total     int            `json:"total"`
	ByVersion map[string]int `json:"by_version"`
	ByMethod  map[string]int `json:"by_method"`
}

// AttackCache is the versioned, TTL-bounded memo of full attack runs.
type AttackCache struct {
	path    string
	version string
	now     func() time.Time
}

// NewAttackCache opens (creating if needed) the cache at path. An empty path
// falls back to the AIPOP_CACHE_DB environment variable, then to
// .aipop/attack_cache.db.
func NewAttackCache(path string) (*AttackCache, error) {
	if path == "" {
		path = os.Getenv(EnvCacheDB)
	}
	if path == "" {
		path = filepath.Join(".aipop", "attack_cache.db")
	}
	c := &AttackCache{path: path, version: version.Core, now: time.Now}
	if err := c.initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithVersion overrides the version namespace; tests use it to simulate a
// core upgrade.
func (c *AttackCache) WithVersion(v string) *AttackCache {
	c.version = v
	return c
}

func (c *AttackCache) initialize() error {
	if dir := filepath.Dir(c.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := c.open()
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.Exec(attackSchema); err != nil {
		return fmt.Errorf("failed to initialize attack cache schema: %w", err)
	}
	return nil
}

// open returns a fresh connection. Callers must Close it before returning;
// the store serializes writers at the file level.
func (c *AttackCache) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attack cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Key computes the canonical cache key under the cache's version namespace.
func (c *AttackCache) Key(method, implementation, prompt, model string, params map[string]interface{}) (string, error) {
	return types.CacheKey(c.version, method, implementation, prompt, model, params)
}

// Get returns the cached result for the inputs, or ErrMiss. A hit requires
// both freshness (now - created <= ttl) and a matching version namespace;
// expired rows are left in place for the GC sweep.
func (c *AttackCache) Get(method, prompt, model, implementation string, params map[string]interface{}) (*types.CachedResult, error) {
	key, err := c.Key(method, implementation, prompt, model, params)
	if err != nil {
		return nil, err
	}

	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var (
		storedVersion string
		createdTS     int64
		ttlHours      float64
		payload       []byte
	)
	row := db.QueryRow(
		`SELECT core_version, created_ts, ttl_hours, payload FROM attack_cache WHERE key = ?`, key)
	if err := row.Scan(&storedVersion, &createdTS, &ttlHours, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("attack cache read: %w", err)
	}

	if storedVersion != c.version {
		return nil, ErrMiss
	}
	created := time.Unix(createdTS, 0)
	if c.now().Sub(created) > time.Duration(ttlHours*float64(time.Hour)) {
		return nil, ErrMiss
	}

	var result types.AttackResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("attack cache payload corrupt for %s: %w", key, err)
	}
	return &types.CachedResult{Result: result, CreatedAt: created, Version: storedVersion}, nil
}

// Put upserts a result. ttlHours <= 0 selects the method's default TTL.
func (c *AttackCache) Put(method, prompt, model, implementation string, params map[string]interface{}, result *types.AttackResult, ttlHours float64) error {
	key, err := c.Key(method, implementation, prompt, model, params)
	if err != nil {
		return err
	}
	if ttlHours <= 0 {
		ttlHours = DefaultTTLHours(method)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("attack cache serialize: %w", err)
	}

	db, err := c.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO attack_cache (key, method, implementation, core_version, created_ts, ttl_hours, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			method = excluded.method,
			implementation = excluded.implementation,
			core_version = excluded.core_version,
			created_ts = excluded.created_ts,
			ttl_hours = excluded.ttl_hours,
			payload = excluded.payload`,
		key, method, implementation, c.version, c.now().Unix(), ttlHours, payload)
	if err != nil {
		return fmt.Errorf("attack cache write: %w", err)
	}
	return nil
}

// ClearByVersion deletes every entry written under v and returns the count.
func (c *AttackCache) ClearByVersion(v string) (int, error) {
	db, err := c.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	res, err := db.Exec(`DELETE FROM attack_cache WHERE core_version = ?`, v)
	if err != nil {
		return 0, fmt.Errorf("attack cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GC sweeps expired rows and rows from foreign version namespaces.
func (c *AttackCache) GC() (int, error) {
	db, err := c.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	nowUnix := c.now().Unix()
	res, err := db.Exec(`
		DELETE FROM attack_cache
		WHERE (? - created_ts) > ttl_hours * 3600.0
		   OR core_version != ?`, nowUnix, c.version)
	if err != nil {
		return 0, fmt.Errorf("attack cache gc: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetStats counts entries by version and by method.
func (c *AttackCache) GetStats() (*Stats, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stats := &Stats{ByVersion: make(map[string]int), ByMethod: make(map[string]int)}

	rows, err := db.Query(`SELECT core_version, method, COUNT(*) FROM attack_cache GROUP BY core_version, method`)
	if err != nil {
		return nil, fmt.Errorf("attack cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ver, method string
		var n int
		if err := rows.Scan(&ver, &method, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		stats.ByVersion[ver] += n
		stats.ByMethod[method] += n
	}
	return stats, rows.Err()
}
