package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voicecap/internal/audio"
)

const userAgent = "voicecap/0.1"

// CloudConfig configures an OpenAI-compatible transcription endpoint.
type CloudConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Language string
	Prompt   string
	Timeout  time.Duration
}

// Cloud uploads audio as multipart WAV to a transcription API.
type Cloud struct {
	backend Backend
	cfg     CloudConfig
	client  *http.Client
}

// NewCloud returns a cloud recognizer. It performs no network I/O.
func NewCloud(backend Backend, cfg CloudConfig, client *http.Client) (*Cloud, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, unavailable(backend, "api key not configured", nil)
	}
	if cfg.Endpoint == "" {
		return nil, unavailable(backend, "endpoint not configured", nil)
	}
	if client == nil {
		client = NewHTTPClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Cloud{backend: backend, cfg: cfg, client: client}, nil
}

// Transcribe implements Recognizer.
func (c *Cloud) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	wavData, err := audio.EncodeWAV(buf)
	if err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "encode audio", Err: err}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "build form", Err: err}
	}
	if _, err := part.Write(wavData); err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "build form", Err: err}
	}
	fields := map[string]string{
		"model":           c.cfg.Model,
		"response_format": "json",
		"prompt":          c.cfg.Prompt,
	}
	if lang := strings.TrimSpace(c.cfg.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		fields["language"] = lang
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "build form", Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "build form", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Msg: "new request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Backend: c.backend, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Backend: c.backend, Kind: KindNetwork, Status: resp.StatusCode, Msg: "read body", Err: err}
	}
	if err := classifyStatus(c.backend, resp.StatusCode, respBody); err != nil {
		return "", err
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Status: resp.StatusCode, Msg: "decode response", Err: err}
	}
	if payload.Text == nil {
		return "", &Error{Backend: c.backend, Kind: KindProtocol, Status: resp.StatusCode, Msg: "response has no text field"}
	}
	return strings.TrimSpace(*payload.Text), nil
}

func classifyStatus(b Backend, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := snippet(body)
	switch status {
	case http.StatusUnauthorized:
		return &Error{Backend: b, Kind: KindInvalidCredentials, Status: status, Msg: msg}
	case http.StatusTooManyRequests:
		return &Error{Backend: b, Kind: KindRateLimited, Status: status, Msg: msg}
	default:
		return &Error{Backend: b, Kind: KindServer, Status: status, Msg: msg}
	}
}

// snippet pulls an API error message out of a response body, falling back to
// the raw text truncated.
func snippet(body []byte) string {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	s := strings.ToValidUTF8(strings.TrimSpace(string(body)), "\uFFFD")
	const maxLen = 200
	if r := []rune(s); len(r) > maxLen {
		s = string(r[:maxLen]) + "..."
	}
	return s
}

var _ Recognizer = (*Cloud)(nil)
