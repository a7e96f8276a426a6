package asr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voicecap/internal/audio"
)

func tone(seconds float64) audio.Buffer {
	n := int(seconds * 16000)
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.1
	}
	return audio.Buffer{Samples: s, SampleRate: 16000, Channels: 1}
}

func newCloud(t *testing.T, url string) *Cloud {
	t.Helper()
	c, err := NewCloud(Groq, CloudConfig{
		Endpoint: url,
		APIKey:   "key-123",
		Model:    "whisper-large-v3",
		Language: "ru",
		Timeout:  2 * time.Second,
	}, &http.Client{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewCloud: %v", err)
	}
	return c
}

func TestCloudTranscribeSendsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("authorization header = %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3" || r.FormValue("language") != "ru" {
			t.Errorf("unexpected fields: model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if !strings.HasPrefix(string(data), "RIFF") {
				t.Errorf("upload is not a wav file")
			}
		}
		_, _ = w.Write([]byte(`{"text":"  привет мир "}`))
	}))
	defer server.Close()

	text, err := newCloud(t, server.URL).Transcribe(context.Background(), tone(0.5))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "привет мир" {
		t.Fatalf("text = %q", text)
	}
}

func TestCloudStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Kind
	}{
		{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, KindInvalidCredentials},
		{http.StatusTooManyRequests, "slow down", KindRateLimited},
		{http.StatusInternalServerError, "boom", KindServer},
		{http.StatusBadRequest, "bad", KindServer},
		{http.StatusOK, `{"transcript":"x"}`, KindProtocol},
		{http.StatusOK, `not json`, KindProtocol},
	}
	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(c.body))
		}))
		_, err := newCloud(t, server.URL).Transcribe(context.Background(), tone(0.1))
		server.Close()
		kind, ok := KindOf(err)
		if !ok || kind != c.want {
			t.Fatalf("status %d body %q: got %v (%v), want %s", c.status, c.body, kind, err, c.want)
		}
	}
}

func TestCloudNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newCloud(t, url).Transcribe(context.Background(), tone(0.1))
	if kind, _ := KindOf(err); kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestCloudWithoutKeyIsUnavailable(t *testing.T) {
	_, err := NewCloud(OpenAI, CloudConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	if kind, _ := KindOf(err); kind != KindBackendUnavailable {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

type fakeEngine struct {
	calls   atomic.Int32
	samples int
	closed  atomic.Bool
}

func (f *fakeEngine) Transcribe(_ context.Context, samples []float32, _ string) (string, error) {
	f.calls.Add(1)
	f.samples = len(samples)
	return " local text ", nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func TestLocalRejectsLongClipsBeforeInference(t *testing.T) {
	eng := &fakeEngine{}
	l := newLocalWithEngine(LocalConfig{MaxDuration: 25 * time.Second}, eng)
	_, err := l.Transcribe(context.Background(), tone(30))
	if kind, _ := KindOf(err); kind != KindBackendUnavailable {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	if eng.calls.Load() != 0 {
		t.Fatalf("engine should not run for long clips")
	}
}

func TestLocalResamplesTo16k(t *testing.T) {
	eng := &fakeEngine{}
	l := newLocalWithEngine(LocalConfig{}, eng)
	buf := audio.Buffer{Samples: make([]float32, 48000*2), SampleRate: 48000, Channels: 2}
	text, err := l.Transcribe(context.Background(), buf)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "local text" {
		t.Fatalf("text = %q", text)
	}
	if eng.samples != 16000 {
		t.Fatalf("engine got %d samples, want 16000", eng.samples)
	}
}

func TestParseBackend(t *testing.T) {
	if b, err := ParseBackend(" OpenAI "); err != nil || b != OpenAI {
		t.Fatalf("parse openai: %v %v", b, err)
	}
	if _, err := ParseBackend("azure"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := error(&Error{Backend: Groq, Kind: KindNetwork, Err: inner})
	if !errors.Is(err, inner) {
		t.Fatalf("unwrap failed")
	}
	if !strings.Contains(err.Error(), "groq: network_error") {
		t.Fatalf("message = %q", err.Error())
	}
}
