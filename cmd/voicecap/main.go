package main

import (
	"fmt"
	"os"

	"voicecap/internal/control"
	"voicecap/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "voicecap",
		Short: "voicecap: push-to-talk dictation daemon",
		Long: `voicecap records from your microphone while a trigger is held, transcribes the
recording through groq, openai or a local whisper.cpp model (falling back in
order until one succeeds), cleans the text up and pastes it where you type.

Bind "voicecap record start" and "voicecap record stop" (or "record toggle")
to a hotkey in your window manager.`,
		Example: `  voicecap start --metrics-addr 127.0.0.1:9318
  voicecap record toggle
  voicecap record start --idea
  voicecap retry
  voicecap history --limit 5
  voicecap transcribe note.wav --copy
  voicecap models download ggml-medium-q5_1.bin
  voicecap service install --env VOICECAP_GROQ_API_KEY=gsk_...`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("voicecap v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/voicecap/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(daemon.NewServeCmd(cfgPath))
	root.AddCommand(control.NewRecordCmd(cfgPath))
	root.AddCommand(control.NewRetryCmd(cfgPath))
	root.AddCommand(control.NewReloadCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewHistoryCmd(cfgPath))
	root.AddCommand(control.NewRecoveryCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%svoicecap%s push-to-talk dictation %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sRecords, transcribes with fallback, cleans up and pastes.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  voicecap [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  record start|stop|toggle    push-to-talk triggers (bind to a hotkey)")
		writeln("  record cancel|idea          discard, or save to the ideas log")
		writeln("  retry                       process the last recording again")
		writeln("  status [--json]             state, primary backend, last transcripts")
		writeln("  history [--limit n]         recent dictations, newest first")
		writeln("  transcribe <wav> [--copy]   run a file through the cascade offline")
		writeln("  doctor                      check keys, model, microphone, clipboard")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  service install|uninstall|status manage launchd plist (macOS)")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --primary <backend>     first backend for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/voicecap/config.toml)")
		writeln("  Env: VOICECAP_GROQ_API_KEY, VOICECAP_OPENAI_API_KEY, VOICECAP_OPENAI_BASE_URL,")
		writeln("       VOICECAP_PRIMARY, VOICECAP_POSTPROCESS_MODE, VOICECAP_METRICS_ADDR,")
		writeln("       VOICECAP_LOG_LEVEL, VOICECAP_LOG_FORMAT, VOICECAP_TRANSCRIPTS_ENABLED,")
		writeln("       VOICECAP_REDACT_PII. Keys may also live in a .env next to the config.")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
