package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/teemow/authflow/internal/oauth"
)

var errTokenInvalid = errors.New("token is not valid")

func newValidateCmd() *cobra.Command {
	var (
		token    string
		audience string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an access token against the provider",
		Long: `Validate the stored access token, or the one given with --token. The token
is checked against the provider's user endpoint and, when an audience is
configured, by introspection that the token was issued to this client.

Exits non-zero when the token is not valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var result oauth.TokenValidation
			if token != "" || cmd.Flags().Changed("audience") {
				if token == "" {
					creds, err := a.vault.Get(cmd.Context())
					if err != nil {
						return credentialsError(err)
					}
					token = creds.AccessToken
				}
				if !cmd.Flags().Changed("audience") {
					audience = a.cfg.ResourceURI
				}
				result = a.manager.ValidateToken(cmd.Context(), token, audience)
			} else {
				result, err = a.flow.Validate(cmd.Context())
				if err != nil {
					return credentialsError(err)
				}
			}

			printValidation(cmd.OutOrStdout(), result)
			if !result.Valid {
				return errTokenInvalid
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Access token to validate instead of the stored one")
	cmd.Flags().StringVar(&audience, "audience", "", "Expected audience (default: OAUTH_RESOURCE_URI)")

	return cmd
}
