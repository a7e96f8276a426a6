package control

import (
	"fmt"
	"os"

	"voicecap/internal/asr"
	"voicecap/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the default model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the default local whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			modelPath := os.ExpandEnv(cfg.Recognition.Local.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "model already present at", modelPath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloading model to %s\n", modelPath)
			if err := downloadFile(cmd.Context(), asr.NewHTTPClient(), modelRegistry[defaultModel], modelPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "model download complete")
			return nil
		},
	}
}
