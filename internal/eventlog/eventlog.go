// Package eventlog appends structured JSON-Lines event records to
// per-category log files, and writes canvas-query bitmaps to disk
// beside their JSON descriptor. Every third-party library in the
// retrieval pack is a service client, a driver, or a math/graph
// library — none of them write JSON Lines — so this one ambient
// concern stays on the standard library's encoding/json and os
// packages; see DESIGN.md.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/siret/somhunter-go/internal/errs"
)

// Category names one append-only log file under a Log's root
// directory, one per event kind named in spec.md §6's "persisted state
// layout" note.
type Category string

const (
	CategoryResults     Category = "results"
	CategoryActions     Category = "actions"
	CategorySubmissions Category = "submissions"
	CategorySomQueries  Category = "som_queries"
)

// Log appends newline-delimited JSON records to one file per Category,
// lazily opened on first write, and writes canvas-query bitmaps beside
// a JSON descriptor. A zero-value Log with an empty Dir is a no-op
// sink: every method silently does nothing, so callers do not need to
// nil-check before logging.
type Log struct {
	Dir string

	mu    sync.Mutex
	files map[Category]*os.File
}

// New returns a Log rooted at dir. Pass an empty dir to get an
// always-successful no-op sink (event logging is optional per
// spec.md §6).
func New(dir string) *Log {
	return &Log{Dir: dir}
}

// Close closes every file this Log has opened.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

// Append marshals record as one JSON line and appends it to cat's log
// file, creating the directory and file on first use. A no-op if Dir
// is empty.
func (l *Log) Append(cat Category, record any) error {
	if l.Dir == "" {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return errs.Wrap("eventlog.append", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.fileFor(cat)
	if err != nil {
		return errs.Wrap("eventlog.append", err)
	}
	if _, err := f.Write(data); err != nil {
		return errs.Wrap("eventlog.append", err)
	}
	return nil
}

func (l *Log) fileFor(cat Category) (*os.File, error) {
	if l.files == nil {
		l.files = make(map[Category]*os.File)
	}
	if f, ok := l.files[cat]; ok {
		return f, nil
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(l.Dir, string(cat)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[cat] = f
	return f, nil
}

// CanvasBitmapDescriptor is the JSON sidecar written next to a
// canvas-query subquery's JPEG bitmap, per spec.md §6's "canvas-query
// bitmaps stored as JPEG beside their JSON descriptor".
type CanvasBitmapDescriptor struct {
	ContextID int     `json:"context_id"`
	Slot      int     `json:"slot"`
	RectX0    float64 `json:"rect_x0"`
	RectY0    float64 `json:"rect_y0"`
	RectX1    float64 `json:"rect_x1"`
	RectY1    float64 `json:"rect_y1"`
	Filename  string  `json:"filename"`
}

// WriteCanvasBitmap writes jpegBytes and its descriptor as a matched
// pair under the canvas subdirectory, named by seq so repeated calls
// for the same context/slot do not collide. Returns the JPEG's
// filename (relative to Dir), not a full path, so callers can log it.
func (l *Log) WriteCanvasBitmap(seq int, jpegBytes []byte, desc CanvasBitmapDescriptor) (string, error) {
	if l.Dir == "" {
		return "", nil
	}
	dir := filepath.Join(l.Dir, "canvas")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap("eventlog.writeCanvasBitmap", err)
	}

	name := fmt.Sprintf("canvas_%06d.jpg", seq)
	desc.Filename = name

	if err := os.WriteFile(filepath.Join(dir, name), jpegBytes, 0o644); err != nil {
		return "", errs.Wrap("eventlog.writeCanvasBitmap", err)
	}

	descData, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", errs.Wrap("eventlog.writeCanvasBitmap", err)
	}
	descName := fmt.Sprintf("canvas_%06d.json", seq)
	if err := os.WriteFile(filepath.Join(dir, descName), descData, 0o644); err != nil {
		return "", errs.Wrap("eventlog.writeCanvasBitmap", err)
	}
	return name, nil
}
