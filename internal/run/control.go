package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"voicecap/internal/control"
	"voicecap/internal/pipeline"
)

func listenControl(path string) (net.Listener, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("control socket permissions: %w", err)
	}
	return ln, nil
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		s.goWorker(func() { s.handleConn(ctx, conn) })
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{Message: fmt.Sprintf("bad request: %v", err)})
		return
	}
	s.logger.Debugf("control: %s", req.Op)
	if err := json.NewEncoder(conn).Encode(s.dispatch(ctx, req)); err != nil && ctx.Err() == nil {
		s.logger.Warnf("control reply: %v", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req control.Request) any {
	switch req.Op {
	case control.OpStatus:
		return s.status()
	case control.OpHealth:
		return reply(nil, "ok")
	case control.OpStart:
		return reply(s.coord.StartRecording(req.Idea), "recording")
	case control.OpStop:
		err := s.coord.StopRecording(ctx)
		if errors.Is(err, pipeline.ErrNotRecording) {
			return reply(nil, "not recording")
		}
		return reply(err, "stopped")
	case control.OpToggle:
		err := s.coord.Toggle(ctx)
		return reply(err, string(s.coord.State()))
	case control.OpCancel:
		if s.coord.CancelRecording() {
			return reply(nil, "cancelled")
		}
		return reply(nil, "not recording")
	case control.OpIdea:
		if s.coord.MarkIdea() {
			return reply(nil, "marked as idea")
		}
		return reply(pipeline.ErrNotRecording, "")
	case control.OpRetry:
		return reply(s.coord.Retry(ctx), "retry queued")
	case control.OpReload:
		return reply(s.reload(), "reloaded")
	case control.OpHistory:
		entries, err := s.journal.Store.List(ctx, req.Limit)
		if err != nil {
			return control.HistoryResponse{Message: err.Error()}
		}
		return control.HistoryResponse{OK: true, Entries: entries}
	case control.OpClearHistory:
		return reply(s.journal.Store.Clear(ctx), "history cleared")
	default:
		return control.SimpleResponse{Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func reply(err error, okMsg string) control.SimpleResponse {
	if err != nil {
		return control.SimpleResponse{Message: err.Error()}
	}
	return control.SimpleResponse{OK: true, Message: okMsg}
}
