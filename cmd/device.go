package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newDeviceCmd() *cobra.Command {
	var scopes string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Sign in with the device authorization flow",
		Long: `Sign in with the OAuth device authorization grant (RFC 8628).

Use this on machines without a browser. The command prints a one-time code
and a verification URL, then polls the provider until the code is entered
on another device, denied, or expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.flow.StartDevice(ctx, parseCommaSeparatedList(scopes))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "First copy your one-time code: %s\n", text.Bold.Sprint(text.FgYellow.Sprint(session.UserCode)))
			if session.VerificationURIComplete != "" {
				fmt.Fprintf(out, "Then open: %s\n", session.VerificationURIComplete)
			} else {
				fmt.Fprintf(out, "Then open: %s\n", session.VerificationURI)
			}
			fmt.Fprintf(out, "Waiting for authorization (code expires in %s) ...\n", formatDuration(time.Until(session.ExpiresAt)))

			tok, err := a.flow.CompleteDevice(ctx, session)
			if err != nil {
				return err
			}
			printToken(out, "Authorization complete.", tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&scopes, "scopes", "", "Comma-separated scopes (default: OAUTH_SCOPES)")

	return cmd
}
