package run

import (
	"context"
	"time"

	"voicecap/internal/hook"
)

// dispatchHook is the coordinator's hook callback. It never blocks the
// processing goroutine.
func (s *Server) dispatchHook(_ context.Context, text string, idea bool) {
	if !s.hook.Enabled() || !s.hook.Accepts(text) {
		return
	}
	if !s.hook.ShouldRun() {
		s.logger.Debug("hook skipped (cooldown)")
		s.metrics.hook("skipped")
		return
	}
	job := hook.Job{Text: text, Timestamp: time.Now(), Idea: idea}
	select {
	case s.hookCh <- job:
	default:
		s.metrics.hook("dropped")
		s.logger.Warn("hook queue full, dropping job")
	}
}

func (s *Server) hookWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.hookCh:
			if err := s.hook.Run(ctx, job); err != nil {
				s.metrics.hook("failed")
				s.logger.Errorf("hook: %v", err)
				continue
			}
			s.metrics.hook("sent")
		}
	}
}
