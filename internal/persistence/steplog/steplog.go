// Package steplog writes compressed JSONL logs of step reports and household
// moves, one file per run.
package steplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/engine"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// Writer appends JSON lines to a zstd-compressed file. The file is opened on
// first write.
type Writer struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewWriter returns a writer for <dir>/<prefix>-<run>.jsonl.zst.
func NewWriter(dir, prefix, run string) *Writer {
	return &Writer{path: filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", prefix, run))}
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes and closes the current file. A later Write starts a new zstd
// frame in the same file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	return err
}

func (w *Writer) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

// MoveEntry is one committed relocation.
type MoveEntry struct {
	Household agents.HouseholdID `json:"household"`
	From      world.ParcelID     `json:"from"`
	To        world.ParcelID     `json:"to"`
	Age       int                `json:"age"`
	Wealth    int                `json:"wealth"`
}

// Logger records step reports and moves for one run. It implements
// engine.Listener; only moves are logged, arrivals and departures are already
// visible in the database.
type Logger struct {
	steps *Writer
	moves *Writer

	dropped atomic.Int64 // Move entries that failed to write
}

// NewLogger creates the step and move logs for a run under dir.
func NewLogger(dir, run string) *Logger {
	return &Logger{
		steps: NewWriter(dir, "steps", run),
		moves: NewWriter(dir, "moves", run),
	}
}

// WriteStep appends a step report.
func (l *Logger) WriteStep(r engine.StepReport) error { return l.steps.Write(r) }

func (l *Logger) HouseholdAdded(*agents.Household)   {}
func (l *Logger) HouseholdDeleted(*agents.Household) {}

func (l *Logger) HouseholdMoved(h *agents.Household, from, to world.ParcelID) {
	err := l.moves.Write(MoveEntry{
		Household: h.ID,
		From:      from,
		To:        to,
		Age:       h.Age,
		Wealth:    h.Wealth(),
	})
	if err != nil {
		l.dropped.Add(1)
		slog.Warn("move log write failed", "household", h.ID, "path", l.moves.Path(), "error", err)
	}
}

// Dropped returns the number of moves that could not be logged.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

// Follow writes every report from ch until it closes.
func (l *Logger) Follow(ch <-chan engine.StepReport) error {
	for r := range ch {
		if err := l.WriteStep(r); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes both logs.
func (l *Logger) Close() error {
	err := l.steps.Close()
	if merr := l.moves.Close(); err == nil {
		err = merr
	}
	return err
}
