package control

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"voicecap/internal/config"
	"voicecap/internal/history"

	"github.com/spf13/cobra"
)

// NewHistoryCmd shows recent dictations from the running daemon.
func NewHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dictations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			var resp HistoryResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpHistory, Limit: limit}, callTimeout, &resp); err != nil {
				return fmt.Errorf("cannot connect to daemon: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("history failed: %s", resp.Message)
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp.Entries)
			}
			printHistory(cmd.OutOrStdout(), resp.Entries)
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "maximum entries (0 for all kept)")
	cmd.Flags().Bool("json", false, "output JSON")
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored history",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(*cfgPath, Request{Op: OpClearHistory})
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	})
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history yet")
		return
	}
	for _, e := range entries {
		mark := ""
		if e.Idea {
			mark = " [idea]"
		}
		fmt.Fprintf(w, "%s  %-6s %5.1fs%s  %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Backend, e.Seconds, mark, oneLine(e.Final))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
