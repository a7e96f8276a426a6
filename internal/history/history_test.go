package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicecap/internal/logging"
)

func openStore(t *testing.T, max int) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "h", "history.db"), max, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreNewestFirstAndCapped(t *testing.T) {
	s := openStore(t, 3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := s.Add(ctx, Entry{Final: fmt.Sprintf("item %d", i), Backend: "groq"}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, want := range []string{"item 5", "item 4", "item 3"} {
		if got[i].Final != want {
			t.Fatalf("entry %d = %q, want %q", i, got[i].Final, want)
		}
	}
}

func TestStoreSkipsDuplicateOfNewestAndEmpty(t *testing.T) {
	s := openStore(t, 10)
	ctx := context.Background()
	add := func(text string) bool {
		ok, err := s.Add(ctx, Entry{Final: text})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		return ok
	}
	if !add("same") || add("same") || add("  ") {
		t.Fatalf("unexpected dedupe result")
	}
	if !add("other") || !add("same") {
		t.Fatalf("a repeat of an older entry should be stored")
	}
	got, _ := s.List(ctx, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestStoreRoundTripsFields(t *testing.T) {
	s := openStore(t, 10)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.Add(ctx, Entry{Timestamp: ts, Backend: "local", Seconds: 2.5, Raw: " raw ", Final: "Final.", Idea: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ := s.List(ctx, 1)
	e := got[0]
	if !e.Timestamp.Equal(ts) || e.Backend != "local" || e.Seconds != 2.5 || e.Raw != "raw" || !e.Idea {
		t.Fatalf("entry = %+v", e)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := s.List(ctx, 0); len(got) != 0 {
		t.Fatalf("clear left %d rows", len(got))
	}
}

func TestTranscriptLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.log")
	l := NewTranscriptLog(path, 3, 1)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	if err := l.Append(Entry{Timestamp: ts, Backend: "openai", Seconds: 1.5, Raw: "hello world ,ok", Final: "Hello world, ok."}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[2026-01-02 03:04:05] backend=openai duration=1.500s\nRAW: hello world ,ok\nPROCESSED: Hello world, ok.\n" + separator + "\n"
	if string(data) != want {
		t.Fatalf("log = %q", string(data))
	}
}

func TestJournalWritesIdeasOnlyForIdeas(t *testing.T) {
	dir := t.TempDir()
	j := &Journal{
		Store:       openStore(t, 10),
		Transcripts: NewTranscriptLog(filepath.Join(dir, "transcripts.log"), 3, 1),
		Ideas:       NewIdeasLog(filepath.Join(dir, "ideas.log")),
		Logger:      logging.NewTestLogger(),
	}
	ctx := context.Background()
	if err := j.Record(ctx, Entry{Final: "not an idea"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Record(ctx, Entry{Final: "build a\nbetter mousetrap", Idea: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ideas.log"))
	if err != nil {
		t.Fatalf("read ideas: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "] build a better mousetrap") {
		t.Fatalf("ideas log = %q", string(data))
	}
	got, _ := j.Store.List(ctx, 0)
	if len(got) != 2 {
		t.Fatalf("history len = %d", len(got))
	}
	_ = j.Transcripts.Close()
}
