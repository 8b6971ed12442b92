package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			c, _, err := a.authorize(cmd.Context(), "runs", &textView{})
			if err != nil {
				return err
			}
			runs, err := c.API().ListPipelineRuns(cmd.Context(), c.Session().AccessToken(cmd.Context()))
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			if len(runs) == 0 {
				a.printer.Info("No pipeline runs yet")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					a.printer.Status(r.Status),
					strconv.Itoa(r.PostsFetched),
					fmt.Sprintf("%d/%d", r.CommentsAnalyzed, r.CommentsFetched),
					formatTime(r.StartedAt),
				})
			}
			return a.printer.Table([]string{"id", "status", "posts", "analyzed", "started"}, rows)
		}),
	}
}
