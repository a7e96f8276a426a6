package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultStateDirLinux = ".local/state/voicecap"
	defaultConfigDir     = ".config/voicecap"
	defaultStatusTail    = 10
	defaultHistoryItems  = 50

	// GroqTranscriptionsURL is the fixed Groq endpoint for speech recognition.
	GroqTranscriptionsURL = "https://api.groq.com/openai/v1/audio/transcriptions"
	// GroqChatURL is the fixed Groq endpoint for chat completions.
	GroqChatURL = "https://api.groq.com/openai/v1/chat/completions"
	// DefaultOpenAIBaseURL is used when recognition.openai.base_url is empty.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	DefaultSystemPrompt = "You are a careful proofreader. Fix typos, add punctuation and make the text grammatical. " +
		"Preserve the meaning and the language. Respond with the corrected text only, without explanations."
)

// BackendConfig holds settings for one cloud recognition backend.
type BackendConfig struct {
	APIKey       string  `toml:"api_key"`
	Model        string  `toml:"model"`
	ModelProcess string  `toml:"model_process"` // chat model used for llm postprocessing
	Language     string  `toml:"language"`
	Prompt       string  `toml:"prompt"`
	BaseURL      string  `toml:"base_url"`
	TimeoutSec   float64 `toml:"timeout_sec"`
}

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName string `toml:"device_name"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		FrameMS    int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		Enabled        bool `toml:"enabled"`
		Aggressiveness int  `toml:"aggressiveness"`
		MinSpeechMS    int  `toml:"min_speech_ms"`
	} `toml:"vad"`

	Recognition struct {
		Primary string        `toml:"primary"` // groq, openai, local
		Groq    BackendConfig `toml:"groq"`
		OpenAI  BackendConfig `toml:"openai"`
		Local   struct {
			ModelPath      string  `toml:"model_path"`
			Language       string  `toml:"language"`
			Threads        int     `toml:"threads"`
			MaxDurationSec float64 `toml:"max_duration_sec"`
		} `toml:"local"`
	} `toml:"recognition"`

	Cascade struct {
		MaxAttempts    int `toml:"max_attempts"`
		BackendDelayMS int `toml:"backend_delay_ms"`
		RoundDelayMS   int `toml:"round_delay_ms"`
	} `toml:"cascade"`

	Postprocess struct {
		Enabled      bool    `toml:"enabled"`
		Mode         string  `toml:"mode"`        // disabled, simple, llm
		LLMBackend   string  `toml:"llm_backend"` // groq, openai
		SystemPrompt string  `toml:"system_prompt"`
		TimeoutSec   float64 `toml:"timeout_sec"`
	} `toml:"postprocess"`

	Scaling struct {
		Enabled bool    `toml:"enabled"`
		Factor  float64 `toml:"factor"`
		Method  string  `toml:"method"` // ola, decimate
	} `toml:"scaling"`

	Output struct {
		Clipboard    bool `toml:"clipboard"`
		PasteDelayMS int  `toml:"paste_delay_ms"`
		Notify       bool `toml:"notify"`
	} `toml:"output"`

	Recovery struct {
		Enabled       bool `toml:"enabled"`
		ReplayDelayMS int  `toml:"replay_delay_ms"`
	} `toml:"recovery"`

	Queue struct {
		Size int `toml:"size"`
	} `toml:"queue"`

	Hook struct {
		Command     string            `toml:"command"`
		Args        []string          `toml:"args"`
		ArgsLine    string            `toml:"args_line"` // shell-style alternative to args
		Prefix      string            `toml:"prefix"`
		CooldownSec float64           `toml:"cooldown_sec"`
		MinChars    int               `toml:"min_chars"`
		QueueSize   int               `toml:"queue_size"`
		TimeoutSec  float64           `toml:"timeout_sec"`
		Env         map[string]string `toml:"env"`
		RedactPII   bool              `toml:"redact_pii"`
	} `toml:"hook"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir       string `toml:"state_dir"`
		LogPath        string `toml:"log_path"`
		TranscriptPath string `toml:"transcript_path"`
		IdeasPath      string `toml:"ideas_path"`
		HistoryPath    string `toml:"history_path"`
		RecoveryDir    string `toml:"recovery_dir"`
		SocketPath     string `toml:"socket_path"`
		PidPath        string `toml:"pid_path"`
		ConfigPath     string `toml:"-"`
	} `toml:"paths"`

	History struct {
		MaxItems int `toml:"max_items"`
	} `toml:"history"`

	Transcripts struct {
		Enabled    bool `toml:"enabled"`
		MaxSizeMB  int  `toml:"max_size_mb"`
		MaxBackups int  `toml:"max_backups"`
	} `toml:"transcripts"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/voicecap for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "voicecap")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.Enabled = true
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.MinSpeechMS = 200

	cfg.Recognition.Primary = "groq"
	cfg.Recognition.Groq.Model = "whisper-large-v3-turbo"
	cfg.Recognition.Groq.ModelProcess = "llama-3.3-70b-versatile"
	cfg.Recognition.Groq.Language = "auto"
	cfg.Recognition.Groq.TimeoutSec = 30
	cfg.Recognition.OpenAI.Model = "whisper-1"
	cfg.Recognition.OpenAI.ModelProcess = "gpt-4o-mini"
	cfg.Recognition.OpenAI.Language = "auto"
	cfg.Recognition.OpenAI.BaseURL = DefaultOpenAIBaseURL
	cfg.Recognition.OpenAI.TimeoutSec = 30
	cfg.Recognition.Local.ModelPath = filepath.Join(stateDir, "models", "ggml-medium-q5_1.bin")
	cfg.Recognition.Local.Language = "auto"
	cfg.Recognition.Local.MaxDurationSec = 25

	cfg.Cascade.MaxAttempts = 5
	cfg.Cascade.BackendDelayMS = 1000
	cfg.Cascade.RoundDelayMS = 2000

	cfg.Postprocess.Enabled = true
	cfg.Postprocess.Mode = "simple"
	cfg.Postprocess.LLMBackend = "groq"
	cfg.Postprocess.SystemPrompt = DefaultSystemPrompt
	cfg.Postprocess.TimeoutSec = 8

	cfg.Scaling.Enabled = false
	cfg.Scaling.Factor = 2.0
	cfg.Scaling.Method = "ola"

	cfg.Output.Clipboard = true
	cfg.Output.PasteDelayMS = 80
	cfg.Output.Notify = true

	cfg.Recovery.Enabled = true
	cfg.Recovery.ReplayDelayMS = 1000

	cfg.Queue.Size = 8

	cfg.Hook.Prefix = ""
	cfg.Hook.CooldownSec = 0
	cfg.Hook.QueueSize = 16
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.Env = map[string]string{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "voicecap.log")
	cfg.Paths.TranscriptPath = filepath.Join(stateDir, "transcripts.log")
	cfg.Paths.IdeasPath = filepath.Join(stateDir, "ideas.log")
	cfg.Paths.HistoryPath = filepath.Join(stateDir, "history.db")
	cfg.Paths.RecoveryDir = filepath.Join(stateDir, "recovery")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "voicecap.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "voicecap.pid")

	cfg.History.MaxItems = defaultHistoryItems

	cfg.Transcripts.Enabled = true
	cfg.Transcripts.MaxSizeMB = 3
	cfg.Transcripts.MaxBackups = 5

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// API keys usually live in a .env next to the config; already-set vars win.
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	dirs := []string{
		cfg.Paths.StateDir,
		filepath.Dir(cfg.Paths.LogPath),
		filepath.Dir(cfg.Paths.TranscriptPath),
		filepath.Dir(cfg.Paths.HistoryPath),
		cfg.Paths.RecoveryDir,
	}
	for _, p := range dirs {
		if p == "" || p == "." {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// BackendDelay returns cascade.backend_delay_ms as a duration.
func (c *Config) BackendDelay() time.Duration {
	return time.Duration(c.Cascade.BackendDelayMS) * time.Millisecond
}

// RoundDelay returns cascade.round_delay_ms as a duration.
func (c *Config) RoundDelay() time.Duration {
	return time.Duration(c.Cascade.RoundDelayMS) * time.Millisecond
}

// Seconds converts a float seconds setting into a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Recognition.Groq.APIKey = MaskSecret(c.Recognition.Groq.APIKey)
	out.Recognition.OpenAI.APIKey = MaskSecret(c.Recognition.OpenAI.APIKey)
	return &out
}

// MaskSecret keeps the first and last four characters of a secret.
func MaskSecret(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICECAP_GROQ_API_KEY"); v != "" {
		cfg.Recognition.Groq.APIKey = v
	}
	if v := os.Getenv("VOICECAP_OPENAI_API_KEY"); v != "" {
		cfg.Recognition.OpenAI.APIKey = v
	}
	if v := os.Getenv("VOICECAP_OPENAI_BASE_URL"); v != "" {
		cfg.Recognition.OpenAI.BaseURL = v
	}
	if v := os.Getenv("VOICECAP_PRIMARY"); v != "" {
		cfg.Recognition.Primary = strings.ToLower(v)
	}
	if v := os.Getenv("VOICECAP_POSTPROCESS_MODE"); v != "" {
		cfg.Postprocess.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("VOICECAP_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("VOICECAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOICECAP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VOICECAP_TRANSCRIPTS_ENABLED"); v != "" {
		cfg.Transcripts.Enabled = truthy(v)
	}
	if v := os.Getenv("VOICECAP_REDACT_PII"); v != "" {
		cfg.Hook.RedactPII = truthy(v)
	}
}

func truthy(v string) bool {
	return v != "0" && strings.ToLower(v) != "false"
}
