package pipeline

import (
	"testing"
	"time"

	"voicecap/internal/asr"
	"voicecap/internal/config"
	"voicecap/internal/logging"
	"voicecap/internal/postprocess"
)

func TestProfileFromDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Recognition.OpenAI.BaseURL = "http://localhost:8080/v1/"
	cfg.Recognition.Groq.APIKey = "gsk"
	cfg.Postprocess.Mode = "llm"

	p, err := ProfileFromConfig(cfg)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Primary != asr.Groq {
		t.Fatalf("primary = %s", p.Primary)
	}
	if p.Recognizers.OpenAI.Endpoint != "http://localhost:8080/v1/audio/transcriptions" {
		t.Fatalf("openai endpoint = %s", p.Recognizers.OpenAI.Endpoint)
	}
	if p.Recognizers.Groq.Language != "" || p.Recognizers.Groq.Timeout != 30*time.Second {
		t.Fatalf("groq settings = %+v", p.Recognizers.Groq)
	}
	if p.Recognizers.Local.MaxDuration != 25*time.Second {
		t.Fatalf("local max = %s", p.Recognizers.Local.MaxDuration)
	}
	if p.Cascade.MaxAttempts != 5 || p.Cascade.BackendDelay != time.Second || p.Cascade.RoundDelay != 2*time.Second {
		t.Fatalf("cascade = %+v", p.Cascade)
	}
	pp := p.Postprocess
	if pp.Mode != postprocess.ModeLLM || pp.Endpoint != config.GroqChatURL || pp.APIKey != "gsk" || pp.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("postprocess = %+v", pp)
	}

	s := p.Settings(nil, logging.NewTestLogger())
	if s.Scaler == nil || s.Postprocessor == nil || s.Primary != asr.Groq {
		t.Fatalf("settings = %+v", s)
	}
}

func TestProfileRejectsBadValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, mutate := range []func(*config.Config){
		func(c *config.Config) { c.Recognition.Primary = "azure" },
		func(c *config.Config) { c.Postprocess.LLMBackend = "local" },
		func(c *config.Config) { c.Scaling.Method = "wsola" },
	} {
		cfg, _ := config.Default()
		mutate(cfg)
		if _, err := ProfileFromConfig(cfg); err == nil {
			t.Fatalf("expected an error")
		}
	}
}
