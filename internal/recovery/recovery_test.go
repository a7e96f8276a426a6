package recovery

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicecap/internal/audio"
	"voicecap/internal/logging"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "recovery"), logging.NewTestLogger())
}

func ramp(seconds float64, rate, channels int) audio.Buffer {
	n := int(seconds*float64(rate)) * channels
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(math.Sin(float64(i)/37)) * 0.8
	}
	return audio.Buffer{Samples: s, SampleRate: rate, Channels: channels}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := newStore(t)
	cases := []audio.Buffer{
		ramp(0.3, 16000, 1),
		ramp(0.05, 44100, 2),
		ramp(25, 16000, 1),
	}
	for _, in := range cases {
		rec, err := st.Save(in)
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		out, err := st.Load(rec)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if out.SampleRate != in.SampleRate || out.Channels != in.Channels || len(out.Samples) != len(in.Samples) {
			t.Fatalf("shape mismatch for %.2fs buffer: rate=%d ch=%d n=%d", in.Seconds(), out.SampleRate, out.Channels, len(out.Samples))
		}
		for i := range in.Samples {
			if d := math.Abs(float64(in.Samples[i] - out.Samples[i])); d > 1.0/16384 {
				t.Fatalf("sample %d differs by %g", i, d)
			}
		}
	}
}

func TestSaveNameEncodesTimeAndDuration(t *testing.T) {
	st := newStore(t)
	st.clock = func() time.Time { return time.UnixMilli(1700000000123) }
	rec, err := st.Save(ramp(1.5, 8000, 1))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.Name() != "rec_1700000000123_1.50.wav" {
		t.Fatalf("unexpected name %q", rec.Name())
	}
	// Same millisecond and duration must not overwrite the first file.
	rec2, err := st.Save(ramp(1.5, 8000, 1))
	if err != nil {
		t.Fatalf("save collision: %v", err)
	}
	if rec2.Path == rec.Path {
		t.Fatalf("collision reused path %s", rec.Path)
	}
	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].Seconds != 1.5 || !pending[0].CapturedAt.Equal(time.UnixMilli(1700000000123)) {
		t.Fatalf("name not parsed: %+v", pending[0])
	}
}

func TestListPendingOldestFirst(t *testing.T) {
	st := newStore(t)
	var recs []Record
	for i := 0; i < 3; i++ {
		rec, err := st.Save(ramp(0.1, 8000, 1))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		recs = append(recs, rec)
	}
	base := time.Now().Add(-time.Hour)
	// Reverse mtimes so order must come from mtime, not name.
	for i, rec := range recs {
		mt := base.Add(time.Duration(len(recs)-i) * time.Minute)
		if err := os.Chtimes(rec.Path, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(st.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}
	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 recordings, got %d", len(pending))
	}
	for i := range pending {
		if pending[i].Path != recs[len(recs)-1-i].Path {
			t.Fatalf("order mismatch at %d: %s", i, pending[i].Name())
		}
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	st := newStore(t)
	rec, err := st.Save(ramp(0.1, 8000, 1))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Cleanup(rec); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := st.Cleanup(rec); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
		t.Fatalf("file still present")
	}
}

func TestLoadCorruptAndQuarantine(t *testing.T) {
	st := newStore(t)
	if err := os.MkdirAll(st.Dir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(st.Dir(), "rec_1_0.50.wav")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pending, _ := st.ListPending()
	if len(pending) != 1 {
		t.Fatalf("expected corrupt file listed")
	}
	if _, err := st.Load(pending[0]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if err := st.Quarantine(pending[0]); err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	pending, _ = st.ListPending()
	if len(pending) != 0 {
		t.Fatalf("quarantined file should not be listed")
	}
}

func TestListPendingMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"), logging.NewTestLogger())
	pending, err := st.ListPending()
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected empty list, got %v %v", pending, err)
	}
}

func TestListPendingSweepsStalePartFiles(t *testing.T) {
	st := newStore(t)
	if _, err := st.Save(ramp(0.2, 16000, 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale := filepath.Join(st.Dir(), "rec_1700000000000_2.00.wav.part")
	fresh := filepath.Join(st.Dir(), "rec_1700000001000_1.00.wav.part")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("RIFF"), 0o600); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected only the finished recording, got %d", len(pending))
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale part file should be removed: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("a part file still being written must be kept: %v", err)
	}
}
