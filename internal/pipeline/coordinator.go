// Package pipeline owns the recording state and runs finished recordings
// through recognition, cleanup and output one at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicecap/internal/asr"
	"voicecap/internal/audio"
	"voicecap/internal/capture"
	"voicecap/internal/cascade"
	"voicecap/internal/history"
	"voicecap/internal/postprocess"
	"voicecap/internal/recovery"
)

// State is the user-visible pipeline state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
)

var (
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrNotRecording   = errors.New("not recording")
	ErrQueueFull      = errors.New("processing queue is full")
)

const genericFailure = "Something went wrong while processing the recording. See the log for details."

// Request is one recording queued for processing. It is never mutated after
// it is enqueued.
type Request struct {
	ID         string
	Buffer     audio.Buffer
	Seconds    float64 // length of Buffer, after scaling
	Recovery   *recovery.Record
	Idea       bool
	CapturedAt time.Time
	Replay     bool
}

// Output receives the final text.
type Output interface {
	Copy(text string) error
	Paste() error
}

// Events observes the pipeline. Calls happen on the processing goroutine
// or the trigger caller's goroutine and must not block for long.
type Events interface {
	StateChanged(s State)
	TextReady(raw, final string)
	Notice(msg string)
	Failed(msg string, retry bool)
}

// Journal persists finished results.
type Journal interface {
	Record(ctx context.Context, e history.Entry) error
}

// Recovery persists buffers until they are processed.
type Recovery interface {
	Save(buf audio.Buffer) (recovery.Record, error)
	ListPending() ([]recovery.Record, error)
	Load(rec recovery.Record) (audio.Buffer, error)
	Cleanup(rec recovery.Record) error
	Quarantine(rec recovery.Record) error
}

// Transcriber turns audio into text. *cascade.Cascade satisfies it.
type Transcriber interface {
	Run(ctx context.Context, buf audio.Buffer, primary asr.Backend) (cascade.Result, error)
}

// Postprocessor turns a raw transcript into final text.
type Postprocessor interface {
	Process(ctx context.Context, raw string) postprocess.Result
}

// Scaler compresses audio before upload.
type Scaler interface {
	Scale(b audio.Buffer) audio.Buffer
}

// Settings is the part of the pipeline that reload may swap.
type Settings struct {
	Primary       asr.Backend
	Postprocessor Postprocessor
	Scaler        Scaler
}

// Options wires a Coordinator. Recorder, Transcriber and Settings.Postprocessor
// are required; the rest may be nil.
type Options struct {
	Recorder    capture.Recorder
	Transcriber Transcriber
	Output      Output
	Events      Events
	Journal     Journal
	Recovery    Recovery
	Hook        func(ctx context.Context, text string, idea bool)
	QueueSize   int
	Settings    Settings
	Logger      *logrus.Logger
}

const (
	sessionOpen int32 = iota
	sessionIdea
	sessionClosed
)

type session struct {
	state atomic.Int32
}

// close freezes the session and reports whether it was marked as an idea.
func (s *session) close() bool {
	return s.state.Swap(sessionClosed) == sessionIdea
}

// Coordinator serializes processing and tracks the recording state.
type Coordinator struct {
	rec      capture.Recorder
	tr       Transcriber
	out      Output
	events   Events
	journal  Journal
	recovery Recovery
	hook     func(ctx context.Context, text string, idea bool)
	logger   *logrus.Logger
	clock    func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	recording bool
	session   *session
	settings  Settings
	inflight  map[string]struct{} // recovery paths queued or processing

	procMu sync.Mutex

	lastMu sync.Mutex
	last   *Request

	jobs    chan *Request
	running atomic.Int32
	state   atomic.Value
}

// New returns an idle coordinator. Call Run to start the worker.
func New(opts Options) *Coordinator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.Events == nil {
		opts.Events = nopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Settings.Postprocessor == nil {
		opts.Settings.Postprocessor = postprocess.New(postprocess.Settings{Mode: postprocess.ModeSimple}, nil, opts.Logger)
	}
	c := &Coordinator{
		rec:      opts.Recorder,
		tr:       opts.Transcriber,
		out:      opts.Output,
		events:   opts.Events,
		journal:  opts.Journal,
		recovery: opts.Recovery,
		hook:     opts.Hook,
		logger:   opts.Logger,
		clock:    time.Now,
		sleep:    sleepCtx,
		settings: opts.Settings,
		inflight: map[string]struct{}{},
		jobs:     make(chan *Request, opts.QueueSize),
	}
	c.state.Store(StateIdle)
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Recording reports whether a capture is open.
func (c *Coordinator) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Queued returns the number of requests waiting for the worker.
func (c *Coordinator) Queued() int {
	return len(c.jobs)
}

// Primary returns the configured primary backend.
func (c *Coordinator) Primary() asr.Backend {
	return c.currentSettings().Primary
}

func (c *Coordinator) setState(s State) {
	c.state.Store(s)
	c.events.StateChanged(s)
}

// busy reports whether a request is queued or being processed.
func (c *Coordinator) busy() bool {
	return len(c.jobs) > 0 || c.running.Load() > 0
}

// recordingEnded publishes the state after a capture closes without
// queueing anything.
func (c *Coordinator) recordingEnded() {
	if c.busy() {
		c.setState(StateProcessing)
		return
	}
	c.setState(StateIdle)
}

// settle publishes a processing-side state unless a capture is open, which
// takes precedence.
func (c *Coordinator) settle(s State) {
	if c.Recording() {
		return
	}
	c.setState(s)
}

func (c *Coordinator) currentSettings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Reconfigure swaps the settings used by later recordings and runs.
func (c *Coordinator) Reconfigure(s Settings) {
	c.mu.Lock()
	if s.Postprocessor == nil {
		s.Postprocessor = c.settings.Postprocessor
	}
	c.settings = s
	c.mu.Unlock()
	c.logger.Infof("pipeline reconfigured (primary=%s)", s.Primary)
}

// StartRecording opens a capture. A second start while recording is ignored.
func (c *Coordinator) StartRecording(idea bool) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	if err := c.rec.Start(); err != nil {
		c.mu.Unlock()
		c.events.Notice(fmt.Sprintf("Could not start recording: %v", err))
		return fmt.Errorf("start recording: %w", err)
	}
	s := &session{}
	if idea {
		s.state.Store(sessionIdea)
	}
	c.session = s
	c.recording = true
	c.mu.Unlock()
	c.setState(StateRecording)
	return nil
}

// MarkIdea flags the open recording as an idea.
func (c *Coordinator) MarkIdea() bool {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return false
	}
	if s.state.CompareAndSwap(sessionOpen, sessionIdea) {
		return true
	}
	return s.state.Load() == sessionIdea
}

// Toggle starts a recording or stops the open one.
func (c *Coordinator) Toggle(ctx context.Context) error {
	if c.Recording() {
		return c.StopRecording(ctx)
	}
	return c.StartRecording(false)
}

// StopRecording finalizes the capture and queues it.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	s := c.session
	idea := s.close()
	buf, err := c.rec.Stop()
	c.session = nil
	c.recording = false
	settings := c.settings
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, capture.ErrNoSpeech) {
			c.logger.Infof("recording discarded: %v", err)
			c.events.Notice("No speech detected")
			c.recordingEnded()
			return nil
		}
		c.events.Notice(fmt.Sprintf("Recording failed: %v", err))
		c.recordingEnded()
		return fmt.Errorf("stop recording: %w", err)
	}
	if err := buf.Validate(); err != nil {
		c.logger.Infof("recording discarded: %v", err)
		c.events.Notice("Recording was empty")
		c.recordingEnded()
		return nil
	}

	if settings.Scaler != nil {
		buf = settings.Scaler.Scale(buf)
	}
	req := &Request{
		ID:         uuid.NewString(),
		Buffer:     buf,
		Seconds:    buf.Seconds(),
		Idea:       idea,
		CapturedAt: c.clock(),
	}
	if c.recovery != nil {
		rec, err := c.recovery.Save(buf)
		if err != nil {
			c.logger.WithField("request", req.ID).Warnf("recovery save: %v", err)
		} else {
			req.Recovery = &rec
		}
	}
	if err := c.enqueue(req); err != nil {
		if req.Recovery != nil {
			c.events.Notice("Busy: recording saved and will be processed on next start")
		} else {
			c.events.Notice("Busy: recording dropped")
		}
		c.recordingEnded()
		return err
	}
	c.setState(StateProcessing)
	return nil
}

func (c *Coordinator) enqueue(req *Request) error {
	c.mu.Lock()
	select {
	case c.jobs <- req:
		if req.Recovery != nil {
			c.inflight[req.Recovery.Path] = struct{}{}
		}
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{"request": req.ID, "seconds": fmt.Sprintf("%.2f", req.Seconds), "idea": req.Idea}).Info("recording queued")
		return nil
	default:
		c.mu.Unlock()
	}
	c.logger.WithField("request", req.ID).Warn("processing queue full")
	return ErrQueueFull
}

// CancelRecording discards the open capture. It reports whether one was open.
func (c *Coordinator) CancelRecording() bool {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return false
	}
	c.session.close()
	c.rec.Cancel()
	c.session = nil
	c.recording = false
	c.mu.Unlock()
	c.recordingEnded()
	return true
}

// Run drains the queue until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.jobs:
			if err := c.Process(ctx, req); err != nil && ctx.Err() == nil {
				c.logger.WithField("request", req.ID).Debugf("process: %v", err)
			}
		}
	}
}

// Retry queues the most recent request again.
func (c *Coordinator) Retry(ctx context.Context) error {
	c.lastMu.Lock()
	last := c.last
	c.lastMu.Unlock()
	if last == nil {
		return ErrNothingToRetry
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.WithField("request", last.ID).Info("retrying last recording")
	if err := c.enqueue(last); err != nil {
		c.events.Notice("Busy: wait for the current recording to finish, then retry")
		return err
	}
	c.settle(StateProcessing)
	return nil
}

// Last returns the most recent request, if any.
func (c *Coordinator) Last() *Request {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.last
}

// Process runs one request to completion. Only one Process runs at a time.
func (c *Coordinator) Process(ctx context.Context, req *Request) (err error) {
	c.running.Add(1)
	defer c.running.Add(-1)
	c.procMu.Lock()
	defer c.procMu.Unlock()
	defer func() {
		if req.Recovery != nil {
			c.mu.Lock()
			delete(c.inflight, req.Recovery.Path)
			c.mu.Unlock()
		}
	}()
	log := c.logger.WithFields(logrus.Fields{"request": req.ID, "replay": req.Replay})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("unexpected pipeline error: %v\n%s", r, debug.Stack())
			c.events.Failed(genericFailure, false)
			c.settle(StateError)
			err = fmt.Errorf("unexpected pipeline error: %v", r)
		}
	}()

	c.lastMu.Lock()
	c.last = req
	c.lastMu.Unlock()

	settings := c.currentSettings()
	c.settle(StateProcessing)

	start := c.clock()
	res, err := c.tr.Run(ctx, req.Buffer, settings.Primary)
	if err != nil {
		if ctx.Err() != nil {
			c.settle(StateIdle)
			return err
		}
		log.Errorf("recognition failed: %v", err)
		c.events.Failed(failureMessage(err), true)
		c.settle(StateError)
		return err
	}
	log.WithFields(logrus.Fields{"backend": res.Backend, "attempts": len(res.Attempts)}).
		Infof("recognized in %s", c.clock().Sub(start).Round(time.Millisecond))

	post := settings.Postprocessor.Process(ctx, res.Text)
	if post.Notice != "" {
		c.events.Notice(post.Notice)
	}
	c.events.TextReady(res.Text, post.Final)

	if post.Final == "" {
		c.events.Notice("No speech recognized")
	} else {
		c.deliver(log, post.Final)
		if c.journal != nil {
			entry := history.Entry{
				Timestamp: req.CapturedAt,
				Backend:   string(res.Backend),
				Seconds:   req.Seconds,
				Raw:       res.Text,
				Final:     post.Final,
				Idea:      req.Idea,
			}
			if err := c.journal.Record(ctx, entry); err != nil {
				log.Warnf("journal: %v", err)
			}
		}
		if c.hook != nil {
			c.hook(ctx, post.Final, req.Idea)
		}
	}

	c.settle(StateReady)
	if req.Recovery != nil && c.recovery != nil {
		if err := c.recovery.Cleanup(*req.Recovery); err != nil {
			log.Warnf("recovery cleanup: %v", err)
		}
	}
	return nil
}

func (c *Coordinator) deliver(log *logrus.Entry, text string) {
	if c.out == nil {
		return
	}
	if err := c.out.Copy(text); err != nil {
		log.Warnf("clipboard: %v", err)
		c.events.Notice("Could not copy the text to the clipboard")
		return
	}
	if err := c.out.Paste(); err != nil {
		log.Warnf("paste: %v", err)
		c.events.Notice("Auto-paste failed; the text is on the clipboard")
	}
}

// Replay processes recordings left over from an earlier run, oldest first,
// waiting delay between files. It returns how many were processed.
func (c *Coordinator) Replay(ctx context.Context, delay time.Duration) (int, error) {
	if c.recovery == nil {
		return 0, nil
	}
	pending, err := c.recovery.ListPending()
	if err != nil {
		return 0, fmt.Errorf("list recovery: %w", err)
	}
	if len(pending) > 0 {
		c.logger.Infof("replaying %d recovered recording(s)", len(pending))
	}
	done := 0
	for i, rec := range pending {
		if i > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return done, err
			}
		}
		c.mu.Lock()
		_, busy := c.inflight[rec.Path]
		c.mu.Unlock()
		if busy {
			continue
		}
		buf, err := c.recovery.Load(rec)
		if err != nil {
			if errors.Is(err, recovery.ErrCorrupt) {
				c.logger.Warnf("quarantining %s: %v", rec.Name(), err)
				if qerr := c.recovery.Quarantine(rec); qerr != nil {
					c.logger.Warnf("quarantine %s: %v", rec.Name(), qerr)
				}
			} else {
				c.logger.Warnf("load %s: %v", rec.Name(), err)
			}
			continue
		}
		r := rec
		req := &Request{
			ID:         uuid.NewString(),
			Buffer:     buf,
			Seconds:    buf.Seconds(),
			Recovery:   &r,
			CapturedAt: rec.CapturedAt,
			Replay:     true,
		}
		if err := c.Process(ctx, req); err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			continue
		}
		done++
	}
	return done, nil
}

func failureMessage(err error) string {
	var ex *cascade.ExhaustedError
	if errors.As(err, &ex) {
		return fmt.Sprintf("Recognition failed after %d attempts: %v", len(ex.Attempts), ex.Last)
	}
	return fmt.Sprintf("Recognition failed: %v", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopEvents struct{}

func (nopEvents) StateChanged(State)       {}
func (nopEvents) TextReady(string, string) {}
func (nopEvents) Notice(string)            {}
func (nopEvents) Failed(string, bool)      {}
