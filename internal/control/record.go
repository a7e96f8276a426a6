package control

import (
	"github.com/spf13/cobra"
)

// NewRecordCmd groups the push-to-talk triggers. A hotkey daemon or window
// manager binding calls these.
func NewRecordCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Control the microphone in the running daemon",
	}
	start := newOpCmd(cfgPath, OpStart, "Start recording")
	start.Flags().Bool("idea", false, "mark this recording as an idea")
	cmd.AddCommand(
		start,
		newOpCmd(cfgPath, OpStop, "Stop recording and process it"),
		newOpCmd(cfgPath, OpToggle, "Start or stop recording"),
		newOpCmd(cfgPath, OpCancel, "Discard the current recording"),
		newOpCmd(cfgPath, OpIdea, "Mark the current recording as an idea"),
	)
	return cmd
}

// NewRetryCmd reprocesses the last recording.
func NewRetryCmd(cfgPath *string) *cobra.Command {
	return newOpCmd(cfgPath, OpRetry, "Process the last recording again")
}

// NewReloadCmd asks the daemon to reload config.
func NewReloadCmd(cfgPath *string) *cobra.Command {
	return newOpCmd(cfgPath, OpReload, "Reload config in the running daemon")
}

func newOpCmd(cfgPath *string, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := Request{Op: op}
			if f := cmd.Flags().Lookup("idea"); f != nil {
				req.Idea, _ = cmd.Flags().GetBool("idea")
			}
			resp, err := send(*cfgPath, req)
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
}
