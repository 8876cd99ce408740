package eventlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendWritesOneLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if err := l.Append(CategoryActions, ActionRecord{ContextID: i, Action: "like"}); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "actions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if n != 3 {
		t.Fatalf("expected 3 lines, got %d", n)
	}
}

func TestAppendWithEmptyDirIsNoOp(t *testing.T) {
	l := New("")
	if err := l.Append(CategoryResults, RescoreRecord{ContextID: 1}); err != nil {
		t.Fatalf("expected no-op sink to succeed, got %v", err)
	}
}

func TestWriteCanvasBitmapWritesMatchedPair(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	defer l.Close()

	name, err := l.WriteCanvasBitmap(1, []byte{0xFF, 0xD8, 0xFF}, CanvasBitmapDescriptor{ContextID: 1, Slot: 0})
	if err != nil {
		t.Fatal(err)
	}
	if name != "canvas_000001.jpg" {
		t.Fatalf("unexpected filename %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, "canvas", "canvas_000001.jpg")); err != nil {
		t.Fatalf("expected jpeg file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "canvas", "canvas_000001.json")); err != nil {
		t.Fatalf("expected json descriptor to exist: %v", err)
	}
}
