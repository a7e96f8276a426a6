package history

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Journal fans a finished dictation out to the configured sinks. Nil sinks
// are skipped.
type Journal struct {
	Store       *Store
	Transcripts *TranscriptLog
	Ideas       *IdeasLog
	Logger      *logrus.Logger
}

// Record writes e everywhere. Failures are joined and logged; they never
// abort the caller.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	var errs []error
	if j.Transcripts != nil {
		if err := j.Transcripts.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	if j.Store != nil {
		if _, err := j.Store.Add(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if e.Idea && j.Ideas != nil {
		if err := j.Ideas.Append(e.Timestamp, e.Final); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil && j.Logger != nil {
		j.Logger.Warnf("journal: %v", err)
	}
	return err
}

// Close closes every sink.
func (j *Journal) Close() error {
	var errs []error
	if j.Transcripts != nil {
		errs = append(errs, j.Transcripts.Close())
	}
	if j.Store != nil {
		errs = append(errs, j.Store.Close())
	}
	return errors.Join(errs...)
}
