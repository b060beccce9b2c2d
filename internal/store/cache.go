package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// Compile-time interface check.
var _ Cache = (*JSONCache)(nil)

const cacheExt = ".json"

// JSONCache implements Cache with one JSON file per payload at:
//
//	<DataDir>/<data_type>/<key>.json
type JSONCache struct {
	DataDir string
}

// NewJSONCache creates a JSONCache rooted at the given data directory.
func NewJSONCache(dataDir string) *JSONCache {
	return &JSONCache{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Cache implementation
// ---------------------------------------------------------------------------

// Exists reports whether a payload file is present.
func (c *JSONCache) Exists(dataType domain.DataType, key string) bool {
	_, err := os.Stat(c.path(dataType, key))
	return err == nil
}

// Write stores payload at the key's path. The data lands in a temporary file
// first and is renamed into place, so a partially written file is never
// visible under the final name.
func (c *JSONCache) Write(dataType domain.DataType, key string, payload json.RawMessage) error {
	path := c.path(dataType, key)
	if c.Exists(dataType, key) {
		return fmt.Errorf("%s/%s: %w", dataType, key, ErrExists)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s/%s: %w", dataType, key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s/%s: %w", dataType, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s/%s: %w", dataType, key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s/%s: %w", dataType, key, err)
	}
	return nil
}

// Read returns the payload stored for key.
func (c *JSONCache) Read(dataType domain.DataType, key string) (json.RawMessage, error) {
	data, err := os.ReadFile(c.path(dataType, key))
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", dataType, key, err)
	}
	return json.RawMessage(data), nil
}

// Keys lists cached keys for dataType in ascending order. A missing type
// directory yields no keys.
func (c *JSONCache) Keys(dataType domain.DataType) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.DataDir, string(dataType)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, cacheExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, cacheExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// ScanLatest returns the greatest YYYY-MM-DD key for dataType. Keys that are
// not plain dates, such as range keys, are ignored.
func (c *JSONCache) ScanLatest(dataType domain.DataType) (time.Time, bool, error) {
	keys, err := c.Keys(dataType)
	if err != nil {
		return time.Time{}, false, err
	}

	latest := ""
	for _, k := range keys {
		if _, err := time.Parse(domain.DateLayout, k); err != nil {
			continue
		}
		if k > latest {
			latest = k
		}
	}
	if latest == "" {
		return time.Time{}, false, nil
	}

	t, _ := time.Parse(domain.DateLayout, latest)
	return t, true, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// path returns the filesystem path of a cache entry.
// Layout: <dataDir>/<data_type>/<key>.json
func (c *JSONCache) path(dataType domain.DataType, key string) string {
	return filepath.Join(c.DataDir, string(dataType), key+cacheExt)
}

// DateKey returns the cache key for a single calendar date.
func DateKey(t time.Time) string {
	return t.Format(domain.DateLayout)
}
