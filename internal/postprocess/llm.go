package postprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// LLMKind classifies rewrite failures.
type LLMKind int

const (
	LLMTimeout LLMKind = iota + 1
	LLMNetwork
	LLMAuth
	LLMRateLimited
	LLMServer
	LLMProtocol
)

func (k LLMKind) String() string {
	switch k {
	case LLMTimeout:
		return "llm_timeout"
	case LLMNetwork:
		return "llm_network"
	case LLMAuth:
		return "llm_auth"
	case LLMRateLimited:
		return "llm_rate_limited"
	case LLMServer:
		return "llm_server"
	case LLMProtocol:
		return "llm_protocol"
	default:
		return "llm_unknown"
	}
}

// LLMError is a failed rewrite call.
type LLMError struct {
	Kind   LLMKind
	Status int
	Err    error
}

func (e *LLMError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// Rewriter rewrites cleaned text with a system prompt.
type Rewriter interface {
	Rewrite(ctx context.Context, system, text string) (string, error)
}

// ChatClient calls an OpenAI-compatible chat/completions endpoint.
type ChatClient struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	client   *http.Client
}

// NewChatClient returns a client. A nil http.Client uses http.DefaultClient.
func NewChatClient(endpoint, apiKey, model string, timeout time.Duration, client *http.Client) *ChatClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChatClient{Endpoint: endpoint, APIKey: apiKey, Model: model, Timeout: timeout, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Rewrite implements Rewriter.
func (c *ChatClient) Rewrite(ctx context.Context, system, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", &LLMError{Kind: LLMProtocol, Err: err}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &LLMError{Kind: LLMProtocol, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &LLMError{Kind: LLMTimeout, Err: err}
		}
		return "", &LLMError{Kind: LLMNetwork, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &LLMError{Kind: LLMTimeout, Status: resp.StatusCode, Err: err}
		}
		return "", &LLMError{Kind: LLMNetwork, Status: resp.StatusCode, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &LLMError{Kind: LLMAuth, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &LLMError{Kind: LLMRateLimited, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &LLMError{Kind: LLMServer, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &LLMError{Kind: LLMProtocol, Status: resp.StatusCode, Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &LLMError{Kind: LLMProtocol, Status: resp.StatusCode, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
