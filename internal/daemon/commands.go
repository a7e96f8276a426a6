// Package daemon holds the start, stop, restart and serve commands.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voicecap/internal/config"
	"voicecap/internal/logging"
	"voicecap/internal/run"

	"github.com/spf13/cobra"
)

const (
	startTimeout = 10 * time.Second
	stopTimeout  = 5 * time.Second
)

// NewStartCmd spawns `serve` detached and waits for it to answer on the
// control socket.
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start voicecap daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if pid, err := livePID(cfg.Paths.PidPath); err == nil {
				return fmt.Errorf("already running with pid %d", pid)
			}
			pid, err := spawn(cfg, runtimeEnv(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "voicecap started (pid %d)\n", pid)
			return nil
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

func spawn(cfg *config.Config, extraEnv []string) (int, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return 0, err
	}
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}
	// Panics before logging is configured land in the log file too.
	logFile, err := os.OpenFile(cfg.Paths.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
	child.Env = append(os.Environ(), extraEnv...)
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return 0, err
	}
	exited := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(exited)
	}()
	if err := waitForHealthy(cfg.Paths.SocketPath, exited, startTimeout); err != nil {
		return 0, err
	}
	return child.Process.Pid, nil
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9318) for this run")
	cmd.Flags().String("primary", "", "first recognition backend for this run (groq, openai, local)")
}

// runtimeEnv turns runtime flags into the env overrides config.Load reads.
func runtimeEnv(cmd *cobra.Command) []string {
	var env []string
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		env = append(env, "VOICECAP_METRICS_ADDR="+addr)
	}
	if primary, _ := cmd.Flags().GetString("primary"); primary != "" {
		env = append(env, "VOICECAP_PRIMARY="+primary)
	}
	return env
}

// NewServeCmd runs the daemon in the foreground. start and launchd use it.
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run voicecap daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range runtimeEnv(cmd) {
				k, v, _ := strings.Cut(kv, "=")
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			return run.Serve(cfg, logger)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

// NewStopCmd sends SIGTERM and, with --wait, blocks until the daemon exits.
// In-flight recordings are saved to recovery on the way down.
func NewStopCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop voicecap daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := stop(cfg.Paths.PidPath); err != nil {
				return err
			}
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				if err := waitForShutdown(cfg.Paths.PidPath, stopTimeout); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "voicecap stopped")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return nil
		},
	}
	cmd.Flags().Bool("wait", false, "wait for the daemon to exit")
	return cmd
}

func stop(pidPath string) error {
	pid, err := livePID(pidPath)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// NewRestartCmd stops a running daemon, waits for it, then starts a new one.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart voicecap daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			switch err := stop(cfg.Paths.PidPath); {
			case err == nil:
				if err := waitForShutdown(cfg.Paths.PidPath, stopTimeout); err != nil {
					return fmt.Errorf("restart: %w", err)
				}
			case errors.Is(err, errNotRunning):
			default:
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			pid, err := spawn(cfg, runtimeEnv(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "voicecap restarted (pid %d)\n", pid)
			return nil
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}
