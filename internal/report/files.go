package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
	"github.com/tuckwoor/garmin-analysis/internal/store"
)

// NextFreePath returns path if nothing exists there, otherwise the first of
// name_1.ext, name_2.ext, ... that is free.
func NextFreePath(path string) string {
	if !exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}

// SaveFile writes data to path, or to the next free name if path is taken.
// Existing files are never replaced. It returns the path written.
func SaveFile(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	for {
		target := NextFreePath(path)
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			// Lost a race for the name; pick the next one.
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing %s: %w", target, err)
		}
		return target, f.Close()
	}
}

// SaveDailyParquet exports the per-day table to path, or to the next free
// name if path is taken. It returns the path written.
func SaveDailyParquet(path string, rows []domain.DailyMetrics) (string, error) {
	target := NextFreePath(path)
	if err := store.WriteDailyMetrics(target, rows); err != nil {
		return "", err
	}
	return target, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
