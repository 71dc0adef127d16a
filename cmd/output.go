package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/teemow/authflow/internal/oauth"
)

var errNotLoggedIn = errors.New("not logged in, run 'authflow login' or 'authflow device' first")

// credentialsError turns ErrNoCredentials into a hint for the user.
func credentialsError(err error) error {
	if errors.Is(err, oauth.ErrNoCredentials) {
		return errNotLoggedIn
	}
	return err
}

func printToken(w io.Writer, heading string, tok *oauth.TokenResponse) {
	fmt.Fprintln(w, text.FgGreen.Sprint(heading))
	if scopes := tok.Scopes(); len(scopes) > 0 {
		fmt.Fprintf(w, "  Scopes:        %s\n", strings.Join(scopes, ", "))
	}
	if tok.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "  Expires:       never")
	} else {
		fmt.Fprintf(w, "  Expires:       %s\n", formatExpiryWithDirection(tok.ExpiresAt))
	}
	fmt.Fprintf(w, "  Refresh token: %s\n", yesNo(tok.RefreshToken != ""))
}

func printValidation(w io.Writer, v oauth.TokenValidation) {
	if !v.Valid {
		fmt.Fprintf(w, "%s (%s)\n", text.FgRed.Sprint("Token is not valid"), v.Reason)
		if v.Error != "" {
			fmt.Fprintf(w, "  Error:   %s\n", v.Error)
		}
		return
	}
	fmt.Fprintln(w, text.FgGreen.Sprint("Token is valid"))
	if len(v.Scopes) > 0 {
		fmt.Fprintf(w, "  Scopes:  %s\n", strings.Join(v.Scopes, ", "))
	}
	if !v.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "  Expires: %s\n", formatExpiryWithDirection(v.ExpiresAt))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}

// parseCommaSeparatedList splits a --scopes style flag value, dropping
// empty entries.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
