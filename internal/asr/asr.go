// Package asr implements the speech recognition backends and the registry
// that builds and caches them.
package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voicecap/internal/audio"
)

// Backend identifies a recognition backend.
type Backend string

const (
	Groq   Backend = "groq"
	OpenAI Backend = "openai"
	Local  Backend = "local"
)

// Canonical is the fixed fallback order.
var Canonical = []Backend{Groq, OpenAI, Local}

// ParseBackend maps a config value to a Backend.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Canonical {
		if b == c {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want groq, openai or local)", s)
}

// Recognizer turns one audio buffer into text. Implementations do not retry.
type Recognizer interface {
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)
}

// Kind classifies recognition failures. Every kind is recoverable from the
// cascade's point of view.
type Kind int

const (
	KindBackendUnavailable Kind = iota + 1
	KindInvalidCredentials
	KindRateLimited
	KindNetwork
	KindProtocol
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network_error"
	case KindProtocol:
		return "protocol_error"
	case KindServer:
		return "backend_server_error"
	default:
		return "unknown"
	}
}

// Error is a classified recognition failure.
type Error struct {
	Backend Backend
	Kind    Kind
	Status  int // HTTP status, when there was a response
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Backend, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a classified error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func unavailable(b Backend, msg string, err error) *Error {
	return &Error{Backend: b, Kind: KindBackendUnavailable, Msg: msg, Err: err}
}
