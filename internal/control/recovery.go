package control

import (
	"fmt"

	"voicecap/internal/config"
	"voicecap/internal/recovery"

	"github.com/spf13/cobra"
)

// NewRecoveryCmd lists recordings waiting to be replayed.
func NewRecoveryCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recovery",
		Short: "List recordings saved for replay on next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			store := recovery.New(cfg.Paths.RecoveryDir, nil)
			pending, err := store.ListPending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending recordings")
				return nil
			}
			for _, r := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %5.1fs  %s\n", r.CapturedAt.Format("2006-01-02 15:04:05"), r.Seconds, r.Path)
			}
			return nil
		},
	}
}
