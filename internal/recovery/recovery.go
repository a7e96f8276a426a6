// Package recovery persists captured audio until processing is confirmed, so
// a crash between capture and paste does not lose the recording.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"voicecap/internal/audio"

	"github.com/sirupsen/logrus"
)

const (
	filePrefix = "rec_"
	fileExt    = ".wav"
	partExt    = ".part"
	badExt     = ".bad"

	// staleAfter is how old a .part file must be before ListPending treats
	// it as left behind by a crash mid-Save.
	staleAfter = time.Minute
)

// ErrCorrupt marks a recovery file that cannot be decoded.
var ErrCorrupt = errors.New("recovery: corrupt recording")

// Record identifies one pending recording on disk.
type Record struct {
	Path       string
	CapturedAt time.Time
	Seconds    float64
	ModTime    time.Time
}

// Name returns the file name of the record.
func (r Record) Name() string {
	return filepath.Base(r.Path)
}

// Store manages rec_<unixms>_<seconds>.wav files in one directory.
type Store struct {
	dir    string
	logger *logrus.Logger
	clock  func() time.Time
}

// New returns a store rooted at dir. The directory is created lazily.
func New(dir string, logger *logrus.Logger) *Store {
	return &Store{dir: dir, logger: logger, clock: time.Now}
}

// Dir returns the directory holding pending recordings.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes buf as 16-bit PCM and returns its record.
func (s *Store) Save(buf audio.Buffer) (Record, error) {
	if err := buf.Validate(); err != nil {
		return Record{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("recovery dir: %w", err)
	}
	now := s.clock()
	base := fmt.Sprintf("%s%d_%.2f", filePrefix, now.UnixMilli(), buf.Seconds())

	for n := 0; n < 100; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		final := filepath.Join(s.dir, name+fileExt)
		if _, err := os.Lstat(final); err == nil {
			continue
		}
		part := final + partExt
		f, err := os.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return Record{}, fmt.Errorf("recovery create: %w", err)
		}
		if err := audio.WriteWAV(f, buf); err != nil {
			_ = f.Close()
			_ = os.Remove(part)
			return Record{}, fmt.Errorf("recovery write: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(part)
			return Record{}, fmt.Errorf("recovery close: %w", err)
		}
		if err := os.Rename(part, final); err != nil {
			_ = os.Remove(part)
			return Record{}, fmt.Errorf("recovery rename: %w", err)
		}
		rec := Record{Path: final, CapturedAt: now, Seconds: buf.Seconds(), ModTime: now}
		if info, err := os.Stat(final); err == nil {
			rec.ModTime = info.ModTime()
		}
		s.logger.WithFields(logrus.Fields{"file": rec.Name(), "seconds": fmt.Sprintf("%.2f", rec.Seconds)}).Debug("recovery saved")
		return rec, nil
	}
	return Record{}, fmt.Errorf("recovery: no free name for %s", base)
}

// ListPending returns saved recordings, oldest first by modification time.
// Stale .part files from an interrupted Save are removed on the way.
func (s *Store) ListPending() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		if strings.HasSuffix(name, fileExt+partExt) {
			s.sweepPart(e)
			continue
		}
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rec := parseName(name)
		rec.Path = filepath.Join(s.dir, name)
		rec.ModTime = info.ModTime()
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Name() < out[j].Name()
	})
	return out, nil
}

func (s *Store) sweepPart(e os.DirEntry) {
	info, err := e.Info()
	if err != nil || s.clock().Sub(info.ModTime()) < staleAfter {
		return
	}
	path := filepath.Join(s.dir, e.Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("recovery: remove stale %s: %v", e.Name(), err)
		return
	}
	s.logger.Infof("recovery: removed incomplete %s", e.Name())
}

// Load decodes a saved recording.
func (s *Store) Load(rec Record) (audio.Buffer, error) {
	f, err := os.Open(rec.Path)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("recovery open: %w", err)
	}
	defer f.Close()
	buf, err := audio.ReadWAV(f)
	if err != nil {
		s.logger.Warnf("recovery: cannot decode %s: %v", rec.Name(), err)
		return audio.Buffer{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, rec.Name(), err)
	}
	return buf, nil
}

// Cleanup deletes a recording. A missing file is not an error.
func (s *Store) Cleanup(rec Record) error {
	if rec.Path == "" {
		return nil
	}
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("recovery cleanup: %w", err)
	}
	return nil
}

// Quarantine renames an undecodable recording so replay skips it.
func (s *Store) Quarantine(rec Record) error {
	if err := os.Rename(rec.Path, rec.Path+badExt); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("recovery quarantine: %w", err)
	}
	return nil
}

// parseName extracts capture time and duration from rec_<ms>_<sec>[_n].wav.
func parseName(name string) Record {
	var rec Record
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	parts := strings.Split(stem, "_")
	if len(parts) >= 1 {
		if ms, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
			rec.CapturedAt = time.UnixMilli(ms)
		}
	}
	if len(parts) >= 2 {
		if sec, err := strconv.ParseFloat(parts[1], 64); err == nil {
			rec.Seconds = sec
		}
	}
	return rec
}
