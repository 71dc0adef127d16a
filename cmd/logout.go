package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.flow.Logout(cmd.Context(), revoke)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !result.HadCredentials {
				fmt.Fprintln(out, "No credentials stored.")
				return nil
			}
			if result.RevokeError != "" {
				fmt.Fprintf(out, "%s %s\n", text.FgYellow.Sprint("Warning: revocation failed:"), result.RevokeError)
			}
			fmt.Fprintln(out, text.FgGreen.Sprint("Logged out."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "Also revoke the access token at the provider")

	return cmd
}
