package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"voicecap/internal/asr"
	"voicecap/internal/audio"
	"voicecap/internal/capture"
	"voicecap/internal/cascade"
	"voicecap/internal/clipboard"
	"voicecap/internal/config"
	"voicecap/internal/control"
	"voicecap/internal/history"
	"voicecap/internal/hook"
	"voicecap/internal/notify"
	"voicecap/internal/pipeline"
	"voicecap/internal/recovery"

	"github.com/sirupsen/logrus"
)

// Server owns the coordinator and everything around it: the control socket,
// hook dispatch, notifications and metrics.
type Server struct {
	logger    *logrus.Logger
	startedAt time.Time

	cfgMu sync.RWMutex
	cfg   *config.Config

	client   *http.Client
	registry *asr.Registry
	tr       *transcriber
	coord    *pipeline.Coordinator
	journal  *history.Journal
	recovery *recovery.Store
	notifier *notify.Notifier
	hook     *hook.Runner
	hookCh   chan hook.Job
	metrics  *metrics
	closers  []func() error

	mu          sync.Mutex
	transcripts []control.Transcript
	lastError   string
	lastState   pipeline.State
	procStart   time.Time

	wg sync.WaitGroup
}

// deps overrides the hardware-facing parts of a Server.
type deps struct {
	recorder    capture.Recorder
	transcriber pipeline.Transcriber
	output      pipeline.Output
	notifier    *notify.Notifier
}

// transcriber lets reload swap the cascade without touching the coordinator.
type transcriber struct {
	mu sync.RWMutex
	c  pipeline.Transcriber
}

func (t *transcriber) Run(ctx context.Context, buf audio.Buffer, primary asr.Backend) (cascade.Result, error) {
	t.mu.RLock()
	c := t.c
	t.mu.RUnlock()
	return c.Run(ctx, buf, primary)
}

func (t *transcriber) set(c pipeline.Transcriber) {
	t.mu.Lock()
	t.c = c
	t.mu.Unlock()
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec capture.Recorder = capture.Unavailable{}
	mic, err := capture.New(captureConfig(cfg), logger)
	switch {
	case err == nil:
		rec = mic
	case errors.Is(err, capture.ErrUnsupported):
		logger.Warn("built without microphone support; only retry and recovery replay will work")
	default:
		return fmt.Errorf("microphone: %w", err)
	}
	srv, err := newServer(ctx, cfg, logger, deps{recorder: rec})
	if err != nil {
		if mic != nil {
			_ = mic.Close()
		}
		return err
	}
	if mic != nil {
		srv.closers = append(srv.closers, mic.Close)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			logger.Infof("received signal %s, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	return srv.serve(ctx)
}

func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		DeviceName:     cfg.Audio.DeviceName,
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		FrameMS:        cfg.Audio.FrameMS,
		VAD:            cfg.VAD.Enabled,
		Aggressiveness: cfg.VAD.Aggressiveness,
		MinSpeech:      time.Duration(cfg.VAD.MinSpeechMS) * time.Millisecond,
	}
}

func newServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, d deps) (*Server, error) {
	profile, err := pipeline.ProfileFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		logger:      logger,
		startedAt:   time.Now(),
		cfg:         cfg,
		client:      asr.NewHTTPClient(),
		metrics:     newMetrics(),
		hook:        hook.NewRunner(cfg, logger),
		hookCh:      make(chan hook.Job, max(1, cfg.Hook.QueueSize)),
		transcripts: make([]control.Transcript, 0, cfg.UI.StatusTail),
		notifier:    d.notifier,
	}
	if s.notifier == nil {
		s.notifier = notify.New(cfg.Output.Notify, logger)
	}

	s.tr = &transcriber{c: d.transcriber}
	if d.transcriber == nil {
		s.registry = asr.NewRegistry(profile.Recognizers, asr.DefaultFactory(s.client))
		s.tr.set(s.newCascade(profile))
		s.closers = append(s.closers, func() error { s.registry.Close(); return nil })
	}

	store, err := history.Open(ctx, cfg.Paths.HistoryPath, cfg.History.MaxItems, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.journal = &history.Journal{Store: store, Ideas: history.NewIdeasLog(cfg.Paths.IdeasPath), Logger: logger}
	if cfg.Transcripts.Enabled {
		s.journal.Transcripts = history.NewTranscriptLog(cfg.Paths.TranscriptPath, cfg.Transcripts.MaxSizeMB, cfg.Transcripts.MaxBackups)
	}
	s.closers = append(s.closers, s.journal.Close)

	opts := pipeline.Options{
		Recorder:    d.recorder,
		Transcriber: s.tr,
		Output:      d.output,
		Events:      s,
		Journal:     s.journal,
		Hook:        s.dispatchHook,
		QueueSize:   cfg.Queue.Size,
		Settings:    profile.Settings(s.client, logger),
		Logger:      logger,
	}
	if cfg.Recovery.Enabled {
		s.recovery = recovery.New(cfg.Paths.RecoveryDir, logger)
		opts.Recovery = s.recovery
	}
	if opts.Output == nil && cfg.Output.Clipboard {
		opts.Output = &clipboard.Output{
			PasteDelay: time.Duration(cfg.Output.PasteDelayMS) * time.Millisecond,
			AutoPaste:  true,
			Logger:     logger,
		}
	}
	s.coord = pipeline.New(opts)
	return s, nil
}

func (s *Server) newCascade(p pipeline.Profile) *cascade.Cascade {
	c := cascade.New(s.registry, p.Cascade, s.logger)
	c.OnAttempt = s.metrics.observeAttempt
	return c
}

// serve runs the workers until ctx is done, then waits for them and closes
// every resource.
func (s *Server) serve(ctx context.Context) error {
	cfg := s.config()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debugf("remove stale socket: %v", err)
	}
	ln, err := listenControl(cfg.Paths.SocketPath)
	if err != nil {
		s.close()
		return err
	}

	s.goWorker(func() { s.controlLoop(ctx, ln) })
	s.goWorker(func() { s.hookWorker(ctx) })
	s.goWorker(func() { s.coord.Run(ctx) })
	if cfg.Metrics.Enabled {
		s.goWorker(func() { s.metrics.serve(ctx, cfg.Metrics.Addr, s.logger) })
	}
	if s.recovery != nil {
		delay := time.Duration(cfg.Recovery.ReplayDelayMS) * time.Millisecond
		s.goWorker(func() {
			n, err := s.coord.Replay(ctx, delay)
			if err != nil && ctx.Err() == nil {
				s.logger.Warnf("recovery replay: %v", err)
			}
			if n > 0 {
				s.logger.Infof("replayed %d recording(s)", n)
			}
		})
	}
	s.logger.Infof("voicecap ready (primary=%s, socket=%s)", s.coord.Primary(), cfg.Paths.SocketPath)

	<-ctx.Done()
	s.coord.CancelRecording()
	_ = ln.Close()
	s.wg.Wait()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debugf("remove socket: %v", err)
	}
	return s.close()
}

func (s *Server) goWorker(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// reload re-reads the config file and applies what can change at runtime:
// recognizer settings, cascade options, postprocessing, scaling and the
// hook. Audio, output and paths need a restart.
func (s *Server) reload() error {
	path := s.config().Paths.ConfigPath
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	profile, err := pipeline.ProfileFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if s.registry != nil {
		s.registry.Invalidate(profile.Recognizers)
		s.tr.set(s.newCascade(profile))
	}
	s.coord.Reconfigure(profile.Settings(s.client, s.logger))
	s.hook.SetConfig(cfg)

	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.logger.Infof("config reloaded from %s", path)
	return nil
}

// StateChanged implements pipeline.Events.
func (s *Server) StateChanged(st pipeline.State) {
	s.metrics.setState(st)
	s.mu.Lock()
	if st == pipeline.StateProcessing && s.lastState != pipeline.StateProcessing {
		s.procStart = time.Now()
	}
	s.lastState = st
	s.mu.Unlock()
	s.logger.Debugf("state: %s", st)
}

// TextReady implements pipeline.Events.
func (s *Server) TextReady(raw, final string) {
	s.mu.Lock()
	started := s.procStart
	s.lastError = ""
	if final != "" {
		s.transcripts = append(s.transcripts, control.Transcript{Text: final, Timestamp: time.Now()})
		if tail := s.config().UI.StatusTail; len(s.transcripts) > tail {
			s.transcripts = s.transcripts[len(s.transcripts)-tail:]
		}
	}
	s.mu.Unlock()
	if !started.IsZero() {
		s.metrics.processing.Observe(time.Since(started).Seconds())
	}
	if final != "" {
		s.metrics.recordings.Inc()
	}
	s.logger.WithField("raw", raw).Infof("text ready: %q", final)
}

// Notice implements pipeline.Events.
func (s *Server) Notice(msg string) {
	s.logger.Info(msg)
	s.notifier.Info(msg)
}

// Failed implements pipeline.Events. Retryable failures get a persistent
// alert so the user knows the recording can be retried.
func (s *Server) Failed(msg string, retry bool) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
	s.metrics.failed(retry)
	s.logger.WithField("retry", retry).Warn(msg)
	if retry {
		s.notifier.Alert(msg + " Run `voicecap retry` to try again.")
		return
	}
	s.notifier.Info(msg)
}

func (s *Server) status() control.Status {
	s.mu.Lock()
	tr := make([]control.Transcript, len(s.transcripts))
	copy(tr, s.transcripts)
	lastErr := s.lastError
	s.mu.Unlock()

	pending := 0
	if s.recovery != nil {
		if recs, err := s.recovery.ListPending(); err == nil {
			pending = len(recs)
		}
	}
	return control.Status{
		Running:     true,
		State:       string(s.coord.State()),
		Recording:   s.coord.Recording(),
		Queued:      s.coord.Queued(),
		Pending:     pending,
		Primary:     string(s.coord.Primary()),
		UptimeSec:   time.Since(s.startedAt).Seconds(),
		LastError:   lastErr,
		Transcripts: tr,
	}
}
