package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/teemow/authflow/internal/oauth"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credentials",
		Long: `Show whether credentials are stored, their scopes and expiry. The provider
is not contacted; use 'authflow validate' for that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.flow.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st oauth.Status) {
	fmt.Fprintf(w, "Client:        %s\n", st.ClientID)

	switch {
	case st.Authenticated:
		fmt.Fprintf(w, "Status:        %s\n", text.FgGreen.Sprint("Authenticated"))
	case st.Expired:
		fmt.Fprintf(w, "Status:        %s\n", text.FgRed.Sprint("Expired"))
	default:
		fmt.Fprintf(w, "Status:        %s\n", text.FgYellow.Sprint("Not authenticated"))
		return
	}

	if st.TokenType != "" {
		fmt.Fprintf(w, "Token type:    %s\n", st.TokenType)
	}
	if len(st.Scopes) > 0 {
		fmt.Fprintf(w, "Scopes:        %s\n", strings.Join(st.Scopes, ", "))
	}
	if st.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "Expires:       never")
	} else {
		fmt.Fprintf(w, "Expires:       %s\n", formatExpiryWithDirection(st.ExpiresAt))
	}
	fmt.Fprintf(w, "Refresh token: %s\n", yesNo(st.HasRefreshToken))
	if !st.StoredAt.IsZero() {
		fmt.Fprintf(w, "Stored:        %s ago\n", formatDuration(time.Since(st.StoredAt)))
	}
	if st.PendingFlows.Total > 0 {
		fmt.Fprintf(w, "Pending flows: %d active, %d expired\n", st.PendingFlows.Active, st.PendingFlows.Expired)
	}
}
