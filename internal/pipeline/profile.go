package pipeline

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"voicecap/internal/asr"
	"voicecap/internal/audio"
	"voicecap/internal/cascade"
	"voicecap/internal/config"
	"voicecap/internal/postprocess"
)

// Profile is everything derived from the config file that a reload may
// change.
type Profile struct {
	Primary     asr.Backend
	Recognizers asr.Settings
	Cascade     cascade.Options
	Postprocess postprocess.Settings
	Scaling     audio.Scaler
}

// ProfileFromConfig validates cfg and derives a Profile.
func ProfileFromConfig(cfg *config.Config) (Profile, error) {
	var p Profile
	primary, err := asr.ParseBackend(cfg.Recognition.Primary)
	if err != nil {
		return p, fmt.Errorf("recognition.primary: %w", err)
	}
	p.Primary = primary

	openAIBase := strings.TrimRight(cfg.Recognition.OpenAI.BaseURL, "/")
	if openAIBase == "" {
		openAIBase = config.DefaultOpenAIBaseURL
	}
	p.Recognizers = asr.Settings{
		Groq:   cloudSettings(cfg.Recognition.Groq, config.GroqTranscriptionsURL),
		OpenAI: cloudSettings(cfg.Recognition.OpenAI, openAIBase+"/audio/transcriptions"),
		Local: asr.LocalConfig{
			ModelPath:   cfg.Recognition.Local.ModelPath,
			Language:    normalizeLanguage(cfg.Recognition.Local.Language),
			Threads:     cfg.Recognition.Local.Threads,
			MaxDuration: config.Seconds(cfg.Recognition.Local.MaxDurationSec),
		},
	}

	p.Cascade = cascade.Options{
		MaxAttempts:  cfg.Cascade.MaxAttempts,
		BackendDelay: cfg.BackendDelay(),
		RoundDelay:   cfg.RoundDelay(),
	}

	pp := postprocess.Settings{
		Enabled:      cfg.Postprocess.Enabled,
		Mode:         postprocess.ParseMode(cfg.Postprocess.Mode),
		SystemPrompt: cfg.Postprocess.SystemPrompt,
		Timeout:      config.Seconds(cfg.Postprocess.TimeoutSec),
	}
	if strings.TrimSpace(pp.SystemPrompt) == "" {
		pp.SystemPrompt = config.DefaultSystemPrompt
	}
	llm, err := asr.ParseBackend(cfg.Postprocess.LLMBackend)
	if err != nil || llm == asr.Local {
		return p, fmt.Errorf("postprocess.llm_backend must be groq or openai (got %q)", cfg.Postprocess.LLMBackend)
	}
	switch llm {
	case asr.Groq:
		pp.Endpoint = config.GroqChatURL
		pp.APIKey = cfg.Recognition.Groq.APIKey
		pp.Model = cfg.Recognition.Groq.ModelProcess
	case asr.OpenAI:
		pp.Endpoint = openAIBase + "/chat/completions"
		pp.APIKey = cfg.Recognition.OpenAI.APIKey
		pp.Model = cfg.Recognition.OpenAI.ModelProcess
	}
	p.Postprocess = pp

	method, err := audio.ParseMethod(cfg.Scaling.Method)
	if err != nil {
		return p, fmt.Errorf("scaling.method: %w", err)
	}
	p.Scaling = audio.Scaler{Enabled: cfg.Scaling.Enabled, Factor: cfg.Scaling.Factor, Method: method}
	return p, nil
}

func cloudSettings(b config.BackendConfig, endpoint string) asr.CloudConfig {
	return asr.CloudConfig{
		Endpoint: endpoint,
		APIKey:   b.APIKey,
		Model:    b.Model,
		Language: normalizeLanguage(b.Language),
		Prompt:   b.Prompt,
		Timeout:  config.Seconds(b.TimeoutSec),
	}
}

func normalizeLanguage(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		return ""
	}
	return s
}

// Processor builds the text postprocessor for this profile.
func (p Profile) Processor(client *http.Client, logger *logrus.Logger) *postprocess.Processor {
	var rw postprocess.Rewriter
	if strings.TrimSpace(p.Postprocess.APIKey) != "" {
		rw = postprocess.NewChatClient(p.Postprocess.Endpoint, p.Postprocess.APIKey, p.Postprocess.Model, p.Postprocess.Timeout, client)
	}
	return postprocess.New(p.Postprocess, rw, logger)
}

// Settings returns the coordinator settings for this profile.
func (p Profile) Settings(client *http.Client, logger *logrus.Logger) Settings {
	scaler := p.Scaling
	scaler.Logger = logger
	return Settings{
		Primary:       p.Primary,
		Postprocessor: p.Processor(client, logger),
		Scaler:        &scaler,
	}
}
