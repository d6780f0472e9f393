// Package jsonl stores the supervisor's run events and the latency tool's
// samples, one JSON object per line, so a run can be followed with tail -f and
// replayed with Read.
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer is shared by the supervisor's emit path and its workers. A nil
// *Writer stands for a disabled event log and drops every record.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// New returns nil when no event log is configured. Runs append to an existing
// log; the file is created on the first event.
func New(path string) *Writer {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Writer{path: path}
}

func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

func (w *Writer) openLocked() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Write appends one event line. Each event is flushed before Write returns so
// a stopped run never leaves its last events buffered.
func (w *Writer) Write(v any) error {
	if w == nil {
		return nil
	}
	if v == nil {
		return fmt.Errorf("jsonl: nil record")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(); err != nil {
		return err
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close ends the log for this run. A later Write reopens the file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.buf != nil {
		err = w.buf.Flush()
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	w.buf, w.file = nil, nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Read replays a log written by Writer, decoding each line into a new T.
// Blank lines are skipped; a malformed line stops the replay with its line
// number.
func Read[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
