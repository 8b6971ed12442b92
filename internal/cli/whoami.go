package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
)

// textView records what the gate asked the view to show.
type textView struct {
	loading  bool
	rendered *api.Identity
}

func (v *textView) Loading() {
	v.loading = true
}

func (v *textView) Render(id api.Identity) {
	v.rendered = &id
}

// authorize runs a gate for the named view and fails with ErrNotSignedIn on
// redirect.
func (a *app) authorize(ctx context.Context, view string, gv gate.View) (*dashclient.Client, api.Identity, error) {
	c, err := a.dashboard()
	if err != nil {
		return nil, api.Identity{}, err
	}
	out := c.NewGate(func() {}).Mount(dashclient.WithViewName(ctx, view), gv)
	if out.State != gate.Authorized {
		return nil, api.Identity{}, ErrNotSignedIn
	}
	return c, out.Identity, nil
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored session and show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			view := &textView{}
			_, id, err := a.authorize(cmd.Context(), "whoami", view)
			if err != nil {
				return err
			}
			a.printer.Success("Signed in as %s", id.DisplayName())
			rows := [][]string{
				{"id", id.ID},
				{"email", id.Email},
				{"plan", id.Plan},
			}
			return a.printer.Table([]string{"field", "value"}, rows)
		}),
	}
}
