package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ResponseTTL bounds how long a raw model response stays valid.
const ResponseTTL = 7 * 24 * time.Hour

const responseSchema = `
CREATE TABLE IF NOT EXISTS response_cache (
	key TEXT PRIMARY KEY,
	prompt TEXT NOT NULL,
	model TEXT NOT NULL,
	response TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_response_created ON response_cache(created_ts);
`

// ResponseCache deduplicates identical (prompt, model) queries so repeated
// verification runs do not re-bill the same completions. It keeps in-process
// hit/miss counters for the run summary.
type ResponseCache struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	hits   int
	misses int
}

// NewResponseCache opens (creating if needed) the response cache at path.
// An empty path defaults to .aipop/response_cache.db.
func NewResponseCache(path string) (*ResponseCache, error) {
	if path == "" {
		path = filepath.Join(".aipop", "response_cache.db")
	}
	c := &ResponseCache{path: path, now: time.Now}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if _, err := db.Exec(responseSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize response cache schema: %w", err)
	}
	return c, nil
}

func (c *ResponseCache) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open response cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func responseKey(prompt, model string) string {
	sum := sha256.Sum256([]byte(prompt + "|" + model))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response text, or ErrMiss.
func (c *ResponseCache) Get(prompt, model string) (string, error) {
	db, err := c.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	var (
		response  string
		createdTS int64
	)
	row := db.QueryRow(`SELECT response, created_ts FROM response_cache WHERE key = ?`,
		responseKey(prompt, model))
	if err := row.Scan(&response, &createdTS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.count(false)
			return "", ErrMiss
		}
		return "", fmt.Errorf("response cache read: %w", err)
	}
	if c.now().Sub(time.Unix(createdTS, 0)) > ResponseTTL {
		c.count(false)
		return "", ErrMiss
	}
	c.count(true)
	return response, nil
}

// Put stores a response, replacing any previous entry for the pair.
func (c *ResponseCache) Put(prompt, model, response string) error {
	db, err := c.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO response_cache (key, prompt, model, response, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			response = excluded.response,
			created_ts = excluded.created_ts`,
		responseKey(prompt, model), prompt, model, response, c.now().Unix())
	if err != nil {
		return fmt.Errorf("response cache write: %w", err)
	}
	return nil
}

// GC sweeps expired responses.
func (c *ResponseCache) GC() (int, error) {
	db, err := c.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	res, err := db.Exec(`DELETE FROM response_cache WHERE (? - created_ts) > ?`,
		c.now().Unix(), int64(ResponseTTL.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("response cache gc: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *ResponseCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// HitRate returns hits, misses, and the hit ratio for this process.
func (c *ResponseCache) HitRate() (hits, misses int, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return c.hits, c.misses, 0
	}
	return c.hits, c.misses, float64(c.hits) / float64(total)
}
