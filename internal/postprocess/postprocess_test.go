package postprocess

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicecap/internal/logging"
)

func TestCleanupScenario(t *testing.T) {
	got := Cleanup(" hello   world ,this is  [noise] a test ")
	if got != "hello world, this is a test" {
		t.Fatalf("Cleanup = %q", got)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"привет как дела это тест без запятых",
		" hello   world ,this is  [noise] a test ",
		"wait... what?!",
		"pi is 3.14 ,roughly",
		"[музыка] [BLANK_AUDIO]",
		"a ,b ;c :d !e ?f .g",
		"one,two.three",
		", leading comma",
		"tabs\tand\nnewlines [x]here",
		"a . . b",
	}
	for _, in := range inputs {
		once := Cleanup(in)
		if twice := Cleanup(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCleanupPunctuation(t *testing.T) {
	cases := map[string]string{
		"one,two.three":       "one, two. three",
		"pi is 3.14 ,roughly": "pi is 3.14, roughly",
		"wait ... what ?!":    "wait... what?!",
		"[BLANK_AUDIO]":       "",
		"tabs\tand\nnewlines": "tabs and newlines",
		"hi[laughs]there":     "hi there",
	}
	for in, want := range cases {
		if got := Cleanup(in); got != want {
			t.Fatalf("Cleanup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimpleModeKeepsNormalizedText(t *testing.T) {
	p := New(Settings{Enabled: true, Mode: ModeSimple}, nil, logging.NewTestLogger())
	in := "привет как дела это тест без запятых"
	res := p.Process(context.Background(), in)
	if res.Final != in || res.Cleaned != in || res.Notice != "" || res.Rewritten {
		t.Fatalf("result = %+v", res)
	}
}

func TestDisabledStillCleans(t *testing.T) {
	rw := &fakeRewriter{out: "should not be used"}
	p := New(Settings{Enabled: false, Mode: ModeLLM, APIKey: "k"}, rw, logging.NewTestLogger())
	res := p.Process(context.Background(), "a  ,b")
	if res.Final != "a, b" || rw.calls != 0 {
		t.Fatalf("result = %+v calls = %d", res, rw.calls)
	}
}

type fakeRewriter struct {
	out   string
	err   error
	panic bool
	calls int
	seen  string
}

func (f *fakeRewriter) Rewrite(_ context.Context, _ string, text string) (string, error) {
	f.calls++
	f.seen = text
	if f.panic {
		panic("boom")
	}
	return f.out, f.err
}

func TestLLMModeRewrites(t *testing.T) {
	rw := &fakeRewriter{out: "  Hello world, this is a test.  "}
	p := New(Settings{Enabled: true, Mode: ModeLLM, APIKey: "k"}, rw, logging.NewTestLogger())
	res := p.Process(context.Background(), "hello world ,this is a test")
	if rw.seen != "hello world, this is a test" {
		t.Fatalf("rewriter got %q", rw.seen)
	}
	if res.Final != "Hello world, this is a test." || !res.Rewritten || res.Notice != "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLLMFallbacks(t *testing.T) {
	cases := []*fakeRewriter{
		{err: &LLMError{Kind: LLMTimeout, Err: context.DeadlineExceeded}},
		{err: &LLMError{Kind: LLMNetwork, Err: errors.New("refused")}},
		{err: &LLMError{Kind: LLMAuth, Status: 401, Err: errors.New("bad key")}},
		{err: &LLMError{Kind: LLMRateLimited, Status: 429, Err: errors.New("slow")}},
		{err: &LLMError{Kind: LLMServer, Status: 503, Err: errors.New("down")}},
		{err: &LLMError{Kind: LLMProtocol, Err: errors.New("garbage")}},
		{err: errors.New("untyped")},
		{out: "   "},
		{panic: true},
	}
	for i, rw := range cases {
		p := New(Settings{Enabled: true, Mode: ModeLLM, APIKey: "k"}, rw, logging.NewTestLogger())
		res := p.Process(context.Background(), " some  text ")
		if res.Final != "some text" || res.Cleaned != "some text" || res.Rewritten {
			t.Fatalf("case %d: result = %+v", i, res)
		}
		if res.Notice == "" {
			t.Fatalf("case %d: expected a notice", i)
		}
	}
}

func TestMissingKeySkipsSilently(t *testing.T) {
	rw := &fakeRewriter{out: "x"}
	p := New(Settings{Enabled: true, Mode: ModeLLM}, rw, logging.NewTestLogger())
	res := p.Process(context.Background(), "text")
	if res.Final != "text" || res.Notice != "" || rw.calls != 0 {
		t.Fatalf("result = %+v calls = %d", res, rw.calls)
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode(" LLM ") != ModeLLM || ParseMode("disabled") != ModeDisabled || ParseMode("weird") != ModeSimple {
		t.Fatalf("ParseMode mapping wrong")
	}
}

func TestChatClientRequestAndReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-1" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "llama" || req.Temperature != 0 || len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi there" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Hi there. "}}]}`))
	}))
	defer server.Close()

	c := NewChatClient(server.URL, "sk-1", "llama", time.Second, nil)
	out, err := c.Rewrite(context.Background(), "fix it", "hi there")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if out != "Hi there." {
		t.Fatalf("out = %q", out)
	}
}

func TestChatClientErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   LLMKind
	}{
		{http.StatusUnauthorized, "no", LLMAuth},
		{http.StatusTooManyRequests, "later", LLMRateLimited},
		{http.StatusBadGateway, "down", LLMServer},
		{http.StatusOK, "{", LLMProtocol},
		{http.StatusOK, `{"choices":[]}`, LLMProtocol},
	}
	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(c.body))
		}))
		_, err := NewChatClient(server.URL, "k", "m", time.Second, nil).Rewrite(context.Background(), "s", "t")
		server.Close()
		var le *LLMError
		if !errors.As(err, &le) || le.Kind != c.want {
			t.Fatalf("status %d: got %v, want %s", c.status, err, c.want)
		}
	}
}

func TestChatClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewChatClient(server.URL, "k", "m", 50*time.Millisecond, nil).Rewrite(context.Background(), "s", "t")
	var le *LLMError
	if !errors.As(err, &le) || le.Kind != LLMTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(le.Error(), "llm_timeout") {
		t.Fatalf("message = %q", le.Error())
	}
}
