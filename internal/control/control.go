package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"voicecap/internal/history"
)

// Ops understood by the daemon's control socket.
const (
	OpStatus       = "status"
	OpHealth       = "health"
	OpStart        = "start"
	OpStop         = "stop"
	OpToggle       = "toggle"
	OpCancel       = "cancel"
	OpIdea         = "idea"
	OpRetry        = "retry"
	OpReload       = "reload"
	OpHistory      = "history"
	OpClearHistory = "clear-history"
)

type Request struct {
	Op    string `json:"op"`
	Idea  bool   `json:"idea,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type Status struct {
	Running     bool         `json:"running"`
	State       string       `json:"state"`
	Recording   bool         `json:"recording"`
	Queued      int          `json:"queued"`
	Pending     int          `json:"pending"`
	Primary     string       `json:"primary"`
	UptimeSec   float64      `json:"uptime_sec"`
	LastError   string       `json:"last_error,omitempty"`
	Transcripts []Transcript `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type HistoryResponse struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Entries []history.Entry `json:"entries"`
}

type Transcript struct {
	Text      string    `json:"text"`
	Backend   string    `json:"backend,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Call sends one request over the unix socket and decodes the reply into out.
func Call(socket string, req Request, timeout time.Duration, out any) error {
	conn, err := net.DialTimeout("unix", socket, timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", socket, err)
	}
	defer conn.Close()
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Op, err)
	}
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(out); err != nil {
		return fmt.Errorf("read %s reply: %w", req.Op, err)
	}
	return nil
}
