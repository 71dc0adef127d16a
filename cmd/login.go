package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/authflow/internal/logging"
	"github.com/teemow/authflow/internal/oauth"
	"github.com/teemow/authflow/internal/server"
)

type loginOptions struct {
	manual       bool
	scopes       string
	organization string
	callbackAddr string
	noBrowser    bool
}

func newLoginCmd() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the authorization code flow",
		Long: `Sign in with the OAuth authorization code flow and PKCE.

By default a local callback server listens on the host and port of
OAUTH_REDIRECT_URI and the authorization finishes as soon as the browser is
redirected back. With --manual the redirect is not received locally; paste
the code or the full redirect URL when prompted instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runLogin(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.manual, "manual", false, "Paste the authorization code instead of running a callback server")
	cmd.Flags().StringVar(&opts.scopes, "scopes", "", "Comma-separated scopes (default: OAUTH_SCOPES)")
	cmd.Flags().StringVar(&opts.organization, "organization", "", "Organization hint passed to the provider")
	cmd.Flags().StringVar(&opts.callbackAddr, "callback-addr", "", "Callback server address (default: host and port of OAUTH_REDIRECT_URI)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Print the authorization URL without opening a browser")

	return cmd
}

func runLogin(ctx context.Context, opts loginOptions, in io.Reader, out io.Writer) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	startOpts := a.startOptions()
	startOpts.Scopes = parseCommaSeparatedList(opts.scopes)
	startOpts.Organization = opts.organization

	if opts.manual {
		startOpts.CallbackMethod = oauth.CallbackManual
		return loginManual(ctx, a.flow, startOpts, in, out)
	}

	addr, path, err := callbackAddress(a.cfg.RedirectURI)
	if err != nil && opts.callbackAddr == "" {
		return fmt.Errorf("%w (or use --manual)", err)
	}
	if opts.callbackAddr != "" {
		addr = opts.callbackAddr
	}

	cs, err := server.NewCallbackServer(server.CallbackServerConfig{
		Addr:   addr,
		Path:   path,
		Flow:   a.flow,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := cs.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cs.Shutdown(shutdownCtx)
	}()

	req, err := a.flow.Start(ctx, startOpts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Open the following URL in your browser to authorize:\n\n  %s\n\n", req.URL)
	if !opts.noBrowser {
		if err := openBrowser(req.URL); err != nil {
			a.logger.Debug("Could not open browser", logging.Err(err))
		}
	}
	fmt.Fprintf(out, "Waiting for the callback on http://%s%s ...\n", addr, path)

	tok, err := waitForCallback(ctx, cs.Results(), serveErr, req)
	if err != nil {
		return err
	}
	printToken(out, "Authorization complete.", tok)
	return nil
}

// waitForCallback returns the token for req's state, ignoring callbacks for
// other states.
func waitForCallback(ctx context.Context, results <-chan server.CallbackResult, serveErr <-chan error, req *oauth.AuthorizationRequest) (*oauth.TokenResponse, error) {
	timer := time.NewTimer(time.Until(req.ExpiresAt))
	defer timer.Stop()

	for {
		select {
		case res := <-results:
			if res.State != req.State {
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Token, nil
		case err := <-serveErr:
			return nil, fmt.Errorf("callback server failed: %w", err)
		case <-timer.C:
			return nil, fmt.Errorf("authorization was not completed before %s", req.ExpiresAt.Format(time.RFC3339))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func loginManual(ctx context.Context, flow *oauth.Flow, startOpts oauth.StartOptions, in io.Reader, out io.Writer) error {
	req, err := flow.Start(ctx, startOpts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Open the following URL in your browser to authorize:\n\n  %s\n\n", req.URL)
	fmt.Fprint(out, "Paste the authorization code or the full redirect URL: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		return errors.New("no authorization code entered")
	}

	code, state, err := parseAuthorizationResponse(scanner.Text(), req.State)
	if err != nil {
		return err
	}

	tok, err := flow.Complete(ctx, code, state)
	if err != nil {
		return err
	}
	printToken(out, "Authorization complete.", tok)
	return nil
}

// parseAuthorizationResponse accepts either a bare code or the redirect URL
// the provider sent the browser to. A bare code is paired with
// defaultState.
func parseAuthorizationResponse(input, defaultState string) (code, state string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", errors.New("no authorization code entered")
	}

	if u, perr := url.Parse(input); perr == nil && u.Scheme != "" && u.RawQuery != "" {
		q := u.Query()
		if providerErr := q.Get("error"); providerErr != "" {
			return "", "", fmt.Errorf("%w: %s", server.ErrAuthorizationDenied, providerErr)
		}
		code = q.Get("code")
		if code == "" {
			return "", "", errors.New("redirect URL has no code parameter")
		}
		state = q.Get("state")
		if state == "" {
			state = defaultState
		}
		return code, state, nil
	}

	return input, defaultState, nil
}
