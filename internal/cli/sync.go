package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync CONNECTION_ID",
		Short: "Start a sync for a connected account",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authorize(cmd.Context(), "sync", &textView{})
			if err != nil {
				return err
			}
			res, err := c.API().SyncConnection(cmd.Context(), c.Session().AccessToken(cmd.Context()), args[0])
			if err != nil {
				return fmt.Errorf("starting sync: %w", err)
			}
			a.printer.Success("%s (run %s)", res.Message, res.TaskID)
			if !watch || res.TaskID == "" {
				return nil
			}
			return a.watchPlain(cmd.Context(), c, res.TaskID, watchOptions{plain: true, pollFallback: true})
		}),
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "follow the started run")
	return cmd
}
