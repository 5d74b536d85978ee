// Package watcher wires fsnotify into the queue. Monitor journals raw
// filesystem activity for the dashboard; WatchDirectory ingests dropped
// change request files.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/types"
	"github.com/BnJam/hyperion/internal/validation"
)

const recentLimit = 10

// RecentFiles is a bounded, newest-first list of recently modified paths
// shared between the fs monitor and the dashboard.
type RecentFiles struct {
	mu    sync.Mutex
	paths []string
}

// Push records path at the front, evicting the oldest past the bound.
func (r *RecentFiles) Push(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append([]string{path}, r.paths...)
	if len(r.paths) > recentLimit {
		r.paths = r.paths[:recentLimit]
	}
}

// Snapshot returns a copy of the current list, newest first.
func (r *RecentFiles) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Monitor journals create/write/remove/rename events under root until ctx is
// cancelled. Events land in the file_events table, the queue log, and the
// shared recent-files ring.
func Monitor(ctx context.Context, q *queue.Queue, root string, recent *RecentFiles) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			recordEvent(ctx, q, recent, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "fs watcher error: %v\n", err)
		}
	}
}

func recordEvent(ctx context.Context, q *queue.Queue, recent *RecentFiles, event fsnotify.Event) {
	path := event.Name
	if recent != nil {
		recent.Push(path)
	}
	details := map[string]string{"path": path, "event": event.Op.String()}
	_ = q.LogEvent(ctx, 0, "fsnotify", "info", "file modified", details)
	_ = q.RecordFileEvent(ctx, path, event.Op.String(), "fsnotify", details)
}

// WatchDirectory ingests change request files dropped into dir: every .json
// file created or written there is parsed, validated, and enqueued. Runs
// until ctx is cancelled.
func WatchDirectory(ctx context.Context, q *queue.Queue, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// A single drop surfaces as create followed by write; ingest each file once.
	ingested := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create | fsnotify.Write) {
				continue
			}
			if filepath.Ext(event.Name) != ".json" || ingested[event.Name] {
				continue
			}
			ingested[event.Name] = true
			if err := IngestChangeRequest(ctx, q, event.Name); err != nil {
				fmt.Fprintf(os.Stderr, "failed to ingest %s: %v\n", event.Name, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

// IngestChangeRequest reads, validates, and enqueues one change request file.
func IngestChangeRequest(ctx context.Context, q *queue.Queue, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read change request: %w", err)
	}
	var request types.ChangeRequest
	if err := json.Unmarshal(contents, &request); err != nil {
		return fmt.Errorf("parse change request: %w", err)
	}
	if result := validation.ValidateChangeRequest(&request); !result.Valid {
		return fmt.Errorf("invalid change request: %v", result.Errors)
	}
	id, err := q.Enqueue(ctx, &request)
	if err != nil {
		return err
	}
	debug.Logf("ingested %s as queue entry %d", path, id)
	return nil
}
