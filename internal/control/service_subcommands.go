package control

import (
	"fmt"
	"os"

	"voicecap/internal/config"
	"voicecap/internal/service"

	"github.com/spf13/cobra"
)

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install user launchd agent (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			pairs, _ := cmd.Flags().GetStringArray("env")
			env, err := service.ParseEnv(pairs)
			if err != nil {
				return err
			}
			agent := service.Agent{
				Label:  service.DefaultLabel,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			}
			out := cmd.OutOrStdout()
			if inherit, _ := cmd.Flags().GetBool("inherit-env"); inherit {
				for _, k := range agent.InheritEnv(os.LookupEnv) {
					fmt.Fprintf(out, "copied %s from the current environment\n", k)
				}
			}
			path, err := service.Install(agent)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "launchd plist written: %s\n", path)
			fmt.Fprintln(out, "Load:   launchctl load -w", path)
			fmt.Fprintf(out, "Start:  launchctl kickstart gui/$(id -u)/%s\n", agent.Label)
			fmt.Fprintf(out, "Stop:   launchctl bootout gui/$(id -u)/%s\n", agent.Label)
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in launchd plist (KEY=VAL)")
	cmd.Flags().Bool("inherit-env", true, "copy VOICECAP_* API keys and backend settings from this shell")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove user launchd plist (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, removed, err := service.Uninstall(service.DefaultLabel)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "no plist at %s\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s; unload with: launchctl bootout gui/$(id -u) %s\n", path, path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show launchd plist path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Installed(service.DefaultLabel)
			fmt.Fprintf(cmd.OutOrStdout(), "plist: %s\n", path)
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "status: present (load with: launchctl load -w", path, ")")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "status: missing (install via: voicecap service install)")
			}
			return nil
		},
	}
}
