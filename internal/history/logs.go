package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voicecap/internal/logging"
)

const (
	tsLayout  = "2006-01-02 15:04:05"
	separator = "----------------------------------------"
)

// TranscriptLog appends plain-text records and rotates at a size limit.
type TranscriptLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewTranscriptLog opens path for appending; maxSizeMB <= 0 means 3.
func NewTranscriptLog(path string, maxSizeMB, maxBackups int) *TranscriptLog {
	if maxSizeMB <= 0 {
		maxSizeMB = 3
	}
	return &TranscriptLog{w: logging.Rotator(path, maxSizeMB, maxBackups, 0)}
}

// Append writes one record:
//
//	[2006-01-02 15:04:05] backend=groq duration=1.234s
//	RAW: ...
//	PROCESSED: ...
//	----------------------------------------
func (l *TranscriptLog) Append(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	backend := e.Backend
	if backend == "" {
		backend = "-"
	}
	rec := fmt.Sprintf("[%s] backend=%s duration=%.3fs\nRAW: %s\nPROCESSED: %s\n%s\n",
		ts.Format(tsLayout), backend, e.Seconds, strings.TrimSpace(e.Raw), strings.TrimSpace(e.Final), separator)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, rec)
	return err
}

// Close closes the underlying file.
func (l *TranscriptLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// IdeasLog appends one "[timestamp] text" line per idea.
type IdeasLog struct {
	mu   sync.Mutex
	path string
}

func NewIdeasLog(path string) *IdeasLog {
	return &IdeasLog{path: path}
}

func (l *IdeasLog) Append(ts time.Time, text string) error {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "[%s] %s\n", ts.Format(tsLayout), text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
