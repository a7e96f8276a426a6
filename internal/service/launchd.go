// Package service installs voicecap as a per-user launchd agent on macOS.
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// DefaultLabel is the launchd label for the per-user agent.
const DefaultLabel = "com.voicecap.agent"

// passthroughEnv lists variables copied into the plist by Install when
// present in the installing shell; launchd agents do not see shell profiles.
var passthroughEnv = []string{
	"VOICECAP_GROQ_API_KEY",
	"VOICECAP_OPENAI_API_KEY",
	"VOICECAP_OPENAI_BASE_URL",
	"VOICECAP_PRIMARY",
	"VOICECAP_LOG_LEVEL",
}

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>ProcessType</key><string>Interactive</string>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>`

var plistTemplate = template.Must(template.New("launchd").Parse(launchdTemplate))

// Agent describes the plist to write.
type Agent struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// ParseEnv turns KEY=VAL pairs into a map.
func ParseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[k] = v
	}
	return env, nil
}

// InheritEnv adds the passthrough variables found by lookup unless the
// agent already sets them. It returns the names it added, sorted.
func (a *Agent) InheritEnv(lookup func(string) (string, bool)) []string {
	if a.Env == nil {
		a.Env = map[string]string{}
	}
	var added []string
	for _, k := range passthroughEnv {
		if _, set := a.Env[k]; set {
			continue
		}
		if v, ok := lookup(k); ok && v != "" {
			a.Env[k] = v
			added = append(added, k)
		}
	}
	sort.Strings(added)
	return added
}

// PlistPath returns the plist path for a label.
func PlistPath(label string) string {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents", label+".plist")
}

// Install writes the plist with owner-only permissions, since it may carry
// API keys, and returns its path.
func Install(a Agent) (string, error) {
	if a.Label == "" {
		a.Label = DefaultLabel
	}
	path := PlistPath(a.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if a.Log != "" {
		if err := os.MkdirAll(filepath.Dir(a.Log), 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if err := plistTemplate.Execute(f, a); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// Uninstall removes the plist. It reports whether one was present.
func Uninstall(label string) (string, bool, error) {
	path := PlistPath(label)
	err := os.Remove(path)
	switch {
	case err == nil:
		return path, true, nil
	case errors.Is(err, os.ErrNotExist):
		return path, false, nil
	default:
		return path, false, err
	}
}

// Installed returns the plist path and whether it exists.
func Installed(label string) (string, bool) {
	path := PlistPath(label)
	_, err := os.Stat(path)
	return path, err == nil
}
