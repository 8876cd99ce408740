package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/siret/somhunter-go/internal/eventlog"
)

func TestOpenEmptyPathIsNoop(t *testing.T) {
	s, err := Open(context.Background(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.RecordAction(context.Background(), 1, eventlog.ActionRecord{Action: "like"}); err != nil {
		t.Fatalf("expected no-op store to succeed, got %v", err)
	}
	n, err := s.CountByAction(context.Background(), "like")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows from no-op store, got %d", n)
	}
}

func TestRecordActionAndCount(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		if err := s.RecordAction(ctx, int64(i), eventlog.ActionRecord{ContextID: i, Action: "like", FrameID: i, NewState: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordAction(ctx, 3, eventlog.ActionRecord{Action: "bookmark"}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountByAction(ctx, "like")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 like rows, got %d", n)
	}
}

func TestRecordRescoreAndSubmission(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.RecordRescore(ctx, 10, eventlog.RescoreRecord{ContextID: 1, UsedText: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSubmission(ctx, 11, eventlog.SubmissionRecord{ContextID: 1, FrameID: 42, Result: "correct"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSomQuery(ctx, 12, eventlog.SomQueryRecord{ContextID: 1, Slot: -1, FrameCount: 100}); err != nil {
		t.Fatal(err)
	}
}

func TestCloseThenRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAction(ctx, 0, eventlog.ActionRecord{Action: "like"}); err != nil {
		t.Fatalf("expected record after close to be a silent no-op, got %v", err)
	}
}
