package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"aipop/internal/types"
	"aipop/internal/version"
)

// FastLookup is a read-only view of the attack cache for callers that only
// want to short-circuit on a hit. It never creates the file or the schema,
// so probing a cold cache stays a cheap stat-and-miss.
type FastLookup struct {
	path    string
	version string
	now     func() time.Time
}

// NewFastLookup builds a read-only client for the cache at path. Empty path
// resolves the same way NewAttackCache does.
func NewFastLookup(path string) *FastLookup {
	if path == "" {
		path = os.Getenv(EnvCacheDB)
	}
	if path == "" {
		path = ".aipop/attack_cache.db"
	}
	return &FastLookup{path: path, version: version.Core, now: time.Now}
}

// Lookup returns the cached result or ErrMiss. A nonexistent cache file is a
// miss, not an error.
func (f *FastLookup) Lookup(method, prompt, model, implementation string, params map[string]interface{}) (*types.CachedResult, error) {
	if _, err := os.Stat(f.path); err != nil {
		return nil, ErrMiss
	}
	key, err := types.CacheKey(f.version, method, implementation, prompt, model, params)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attack cache: %w", err)
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
	if storedVersion != f.version {
		return nil, ErrMiss
	}
	created := time.Unix(createdTS, 0)
	if f.now().Sub(created) > time.Duration(ttlHours*float64(time.Hour)) {
		return nil, ErrMiss
	}

	var result types.AttackResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("attack cache payload corrupt for %s: %w", key, err)
	}
	return &types.CachedResult{Result: result, CreatedAt: created, Version: storedVersion}, nil
}
