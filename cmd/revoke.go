package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newRevokeCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an access token at the provider",
		Long: `Revoke the stored access token at the provider and clear the local
credentials. With --token, revoke that token instead and leave the stored
credentials alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if token != "" {
				if err := a.manager.RevokeToken(cmd.Context(), token); err != nil {
					return err
				}
				fmt.Fprintln(out, text.FgGreen.Sprint("Token revoked."))
				return nil
			}

			result, err := a.flow.Logout(cmd.Context(), true)
			if err != nil {
				return err
			}
			if !result.HadCredentials {
				return errNotLoggedIn
			}
			if result.RevokeError != "" {
				return fmt.Errorf("local credentials cleared but revocation failed: %s", result.RevokeError)
			}
			fmt.Fprintln(out, text.FgGreen.Sprint("Token revoked and local credentials cleared."))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Access token to revoke instead of the stored one")

	return cmd
}
