package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentimenta/dashclient/jwt"
	"github.com/sentimenta/dashclient/session"
)

func newSessionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the locally stored session",
	}
	cmd.AddCommand(newSessionSetCommand(a), newSessionShowCommand(a), newSessionClearCommand(a))
	return cmd
}

func newSessionSetCommand(a *app) *cobra.Command {
	var access, refresh string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access and refresh token pair",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			c, err := a.dashboard()
			if err != nil {
				return err
			}
			if err := c.Session().Set(cmd.Context(), access, refresh); err != nil {
				return fmt.Errorf("storing session: %w", err)
			}
			a.printer.Success("Session stored")
			return nil
		}),
	}
	cmd.Flags().StringVar(&access, "access", "", "access token")
	cmd.Flags().StringVar(&refresh, "refresh", "", "refresh token")
	_ = cmd.MarkFlagRequired("access")
	_ = cmd.MarkFlagRequired("refresh")
	return cmd
}

func newSessionShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored session without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			c, err := a.dashboard()
			if err != nil {
				return err
			}
			cred, ok := c.Session().Get(cmd.Context())
			if !ok {
				a.printer.Warning("No session stored")
				return nil
			}

			rows := [][]string{
				{"access token", abbreviate(cred.AccessToken)},
				{"saved at", formatTime(cred.SavedAt)},
			}
			if fb, ok := c.Session().Backend().(*session.FileBackend); ok {
				encrypted := "no"
				if fb.IsEncrypted() {
					encrypted = "yes (age)"
				}
				rows = append(rows, []string{"file", fb.Path()}, []string{"encrypted", encrypted})
			}
			// Claims are decoded without verification and shown as a hint only.
			if claims, err := jwt.Inspect(cred.AccessToken); err == nil {
				rows = append(rows, []string{"subject", claims.Subject})
				if claims.Email != "" {
					rows = append(rows, []string{"email", claims.Email})
				}
				if claims.ExpiresAt != nil {
					exp := formatTime(claims.ExpiresAt.Time)
					if claims.Expired(time.Now()) {
						exp += " (expired)"
					}
					rows = append(rows, []string{"expires", exp})
				}
			}
			return a.printer.Table([]string{"field", "value"}, rows)
		}),
	}
}

func newSessionClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			c, err := a.dashboard()
			if err != nil {
				return err
			}
			if err := c.Session().Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clearing session: %w", err)
			}
			a.printer.Success("Session cleared")
			return nil
		}),
	}
}

func abbreviate(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:8] + "…" + token[len(token)-6:]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
