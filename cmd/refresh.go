package cmd

import (
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored access token",
		Long: `Exchange the stored refresh token for a new access token. If the provider
does not return a new refresh token the previous one is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.flow.Refresh(cmd.Context())
			if err != nil {
				return credentialsError(err)
			}
			printToken(cmd.OutOrStdout(), "Token refreshed.", tok)
			return nil
		},
	}
}
