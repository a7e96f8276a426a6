package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"voicecap/internal/capture"
	"voicecap/internal/clipboard"
	"voicecap/internal/config"
	"voicecap/internal/pipeline"
	"voicecap/internal/recovery"
)

// Result represents a diagnostic check. Optional checks only warn.
type Result struct {
	Name     string
	Pass     bool
	Optional bool
	Detail   string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath, false),
		checkProfile(cfg),
	}
	results = append(results, checkCredentials(cfg)...)
	results = append(results,
		checkFile("local model", cfg.Recognition.Local.ModelPath, cfg.Recognition.Primary != "local"),
		checkRecovery(cfg),
		checkHookExecutable(cfg.Hook.Command),
		checkPortAudioPkgConfig(),
		checkMicrophone(capture.Devices),
		checkClipboard(cfg),
	)
	return results
}

func checkFile(label, path string, optional bool) Result {
	if path == "" {
		return Result{Name: label, Optional: optional, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Optional: optional, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Optional: optional, Detail: path}
}

func checkProfile(cfg *config.Config) Result {
	p, err := pipeline.ProfileFromConfig(cfg)
	if err != nil {
		return Result{Name: "settings", Detail: err.Error()}
	}
	return Result{Name: "settings", Pass: true, Detail: fmt.Sprintf("primary=%s postprocess=%s", p.Primary, p.Postprocess.Mode)}
}

// checkCredentials reports each cloud key. Missing keys only warn, but at
// least one backend must be usable.
func checkCredentials(cfg *config.Config) []Result {
	groq := keyResult("groq key", cfg.Recognition.Groq.APIKey, "VOICECAP_GROQ_API_KEY")
	openai := keyResult("openai key", cfg.Recognition.OpenAI.APIKey, "VOICECAP_OPENAI_API_KEY")
	out := []Result{groq, openai}
	if !groq.Pass && !openai.Pass {
		if _, err := os.Stat(os.ExpandEnv(cfg.Recognition.Local.ModelPath)); err != nil {
			out = append(out, Result{Name: "backends", Detail: "no cloud key and no local model; nothing can transcribe"})
		}
	}
	return out
}

func keyResult(label, key, env string) Result {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{Name: label, Optional: true, Detail: "not set (" + env + ")"}
	}
	return Result{Name: label, Pass: true, Optional: true, Detail: config.MaskSecret(key)}
}

func checkRecovery(cfg *config.Config) Result {
	label := "recovery"
	if !cfg.Recovery.Enabled {
		return Result{Name: label, Pass: true, Optional: true, Detail: "disabled"}
	}
	dir := cfg.Paths.RecoveryDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: label, Detail: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return Result{Name: label, Detail: "not writable: " + err.Error()}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	pending, err := recovery.New(dir, nil).ListPending()
	if err != nil {
		return Result{Name: label, Detail: err.Error()}
	}
	detail := dir
	if len(pending) > 0 {
		detail = fmt.Sprintf("%s (%d pending)", dir, len(pending))
	}
	return Result{Name: label, Pass: true, Detail: detail}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: true, Optional: true, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Optional: true, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}

func checkMicrophone(devices func() ([]capture.Device, error)) Result {
	label := "microphone"
	devs, err := devices()
	if errors.Is(err, capture.ErrUnsupported) {
		return Result{Name: label, Detail: "built without microphone support (rebuild with -tags whisper)"}
	}
	if err != nil {
		return Result{Name: label, Detail: err.Error()}
	}
	if len(devs) == 0 {
		return Result{Name: label, Detail: "no input devices"}
	}
	for _, d := range devs {
		if d.Default {
			return Result{Name: label, Pass: true, Detail: fmt.Sprintf("default %q, %d device(s)", d.Name, len(devs))}
		}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%d device(s)", len(devs))}
}

func checkClipboard(cfg *config.Config) Result {
	label := "clipboard"
	if !cfg.Output.Clipboard {
		return Result{Name: label, Pass: true, Optional: true, Detail: "disabled"}
	}
	if !clipboard.Supported() {
		return Result{Name: label, Detail: "no clipboard utility (install xclip, xsel or wl-clipboard)"}
	}
	return Result{Name: label, Pass: true, Detail: "ok"}
}
