package jsonl

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type rec struct {
	N    int    `json:"n"`
	Kind string `json:"kind"`
}

func TestNilWriterDiscards(t *testing.T) {
	w := New("   ")
	if w != nil {
		t.Fatalf("blank path should give a nil writer")
	}
	if err := w.Write(rec{N: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	w := New(path)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Write(rec{N: i, Kind: "x"}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening appends rather than truncates.
	w = New(path)
	if err := w.Write(rec{N: 99, Kind: "last"}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	seen := map[int]bool{}
	var last rec
	err := Read(path, func(r rec) error {
		seen[r.N] = true
		last = r
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(seen) != 21 || last.Kind != "last" {
		t.Fatalf("got %d records, last %+v", len(seen), last)
	}
}

func TestReadReportsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"n\":1}\n\n{oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	n := 0
	err := Read(path, func(rec) error { n++; return nil })
	if err == nil || n != 1 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}

func TestWriteNilRecord(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "e.jsonl"))
	defer w.Close()
	if err := w.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}
