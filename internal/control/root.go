package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"voicecap/internal/config"
	"voicecap/internal/doctor"
	"voicecap/internal/hook"
	"voicecap/internal/logging"

	"github.com/spf13/cobra"
)

const callTimeout = 5 * time.Second

// send issues a simple op to the daemon and turns a refusal into an error.
func send(cfgPath string, req Request) (SimpleResponse, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return SimpleResponse{}, err
	}
	var resp SimpleResponse
	if err := Call(cfg.Paths.SocketPath, req, callTimeout, &resp); err != nil {
		return resp, fmt.Errorf("cannot reach daemon: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s failed: %s", req.Op, resp.Message)
	}
	return resp, nil
}

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpStatus}, callTimeout, &status); err != nil {
				return fmt.Errorf("cannot connect to daemon: %w", err)
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printStatus(w io.Writer, s Status) {
	fmt.Fprintf(w, "running: %v\nstate: %s\nprimary: %s\nuptime: %.1fs\n", s.Running, s.State, s.Primary, s.UptimeSec)
	if s.Queued > 0 || s.Pending > 0 {
		fmt.Fprintf(w, "queued: %d\npending recovery: %d\n", s.Queued, s.Pending)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "last error: %s\n", s.LastError)
	}
	for _, t := range s.Transcripts {
		fmt.Fprintf(w, "%s  %s\n", t.Timestamp.Format("15:04:05"), t.Text)
	}
}

// NewHealthCmd checks that the daemon answers on its socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is responsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*cfgPath, Request{Op: OpHealth})
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show the last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			transcripts, _ := cmd.Flags().GetBool("transcripts")
			path := cfg.Paths.LogPath
			if transcripts {
				path = cfg.Paths.TranscriptPath
			}
			lines, err := tailFile(path, n)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	cmd.Flags().Bool("transcripts", false, "tail the transcript log instead of the daemon log")
	return cmd
}

func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, n)
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// NewTestHookCmd triggers hook manually.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-hook \"some text\"",
		Short: "Send sample text through hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			r := hook.NewRunner(cfg, logger)
			job := hook.Job{Text: args[0], Timestamp: time.Now()}
			return r.Run(cmd.Context(), job)
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				switch {
				case !r.Pass && r.Optional:
					status = "warn"
				case !r.Pass:
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

// NewServiceCmd installs a launchd plist (macOS).
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage launchd service (macOS)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}
