package crawl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DownloadWatcher watches a browser download directory for files that
// appear after a trigger fires, waits for them to finish writing, and
// moves them into a target directory.
type DownloadWatcher struct {
	WatchDir  string
	TargetDir string
	Interval  time.Duration
	Timeout   time.Duration
	Retries   int

	// PartialSuffixes marks files the browser is still writing. A new
	// file carrying one of these is not complete yet.
	PartialSuffixes []string

	Log *zap.Logger
}

// NewDownloadWatcher returns a watcher with the usual Chrome in-progress
// suffixes and moderate polling defaults.
func NewDownloadWatcher(watchDir, targetDir string, log *zap.Logger) *DownloadWatcher {
	return &DownloadWatcher{
		WatchDir:        watchDir,
		TargetDir:       targetDir,
		Interval:        time.Second,
		Timeout:         2 * time.Minute,
		Retries:         3,
		PartialSuffixes: []string{".crdownload", ".tmp", ".part"},
		Log:             log,
	}
}

// Run snapshots the watch directory, fires trigger, and waits for at least
// one new, fully written file to show up. Completed files are moved into
// TargetDir and their new paths returned.
//
// When a trigger attempt times out it is retried up to Retries times. If
// every attempt times out, a sentinel error.html is written into TargetDir
// so the gap is visible when browsing the output tree, and the last error
// is returned.
func (w *DownloadWatcher) Run(trigger func() error) ([]string, error) {
	before, err := w.listNames()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= w.Retries; attempt++ {
		if attempt > 0 {
			w.Log.Warn("retrying download", zap.Int("attempt", attempt))
		}
		if err := trigger(); err != nil {
			lastErr = err
			continue
		}
		names, err := w.waitComplete(before)
		if err == nil {
			return w.move(names)
		}
		lastErr = err
		if !errors.Is(err, ErrPollTimeout) {
			break
		}
	}

	w.writeSentinel(lastErr)
	return nil, fmt.Errorf("download failed: %w", lastErr)
}

func (w *DownloadWatcher) listNames() (map[string]bool, error) {
	names := make(map[string]bool)
	entries, err := os.ReadDir(w.WatchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, fmt.Errorf("reading %s: %w", w.WatchDir, err)
	}
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

func (w *DownloadWatcher) isPartial(name string) bool {
	for _, suffix := range w.PartialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// waitComplete polls until the watch directory holds at least one new file
// and none of the new files is still partial.
func (w *DownloadWatcher) waitComplete(before map[string]bool) ([]string, error) {
	var complete []string
	err := Poll(func() (bool, error) {
		now, err := w.listNames()
		if err != nil {
			return false, err
		}
		complete = complete[:0]
		seen := false
		for name := range now {
			if before[name] {
				continue
			}
			seen = true
			if w.isPartial(name) {
				return false, nil
			}
			complete = append(complete, name)
		}
		return seen, nil
	}, w.Interval, w.Timeout)
	if err != nil {
		return nil, err
	}
	return complete, nil
}

func (w *DownloadWatcher) move(names []string) ([]string, error) {
	if err := os.MkdirAll(w.TargetDir, 0755); err != nil {
		return nil, err
	}
	moved := make([]string, 0, len(names))
	for _, name := range names {
		src := filepath.Join(w.WatchDir, name)
		dst := filepath.Join(w.TargetDir, name)
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("moving %s: %w", name, err)
		}
		w.Log.Info("downloaded", zap.String("file", name))
		moved = append(moved, dst)
	}
	return moved, nil
}

func (w *DownloadWatcher) writeSentinel(cause error) {
	if err := os.MkdirAll(w.TargetDir, 0755); err != nil {
		return
	}
	body := fmt.Sprintf("<html><body><p>download failed: %v</p></body></html>\n", cause)
	path := filepath.Join(w.TargetDir, "error.html")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		w.Log.Warn("writing sentinel", zap.Error(err))
	}
}
