package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Kind classifies a failure so callers can decide how to react to it.
type Kind int

const (
	// KindUnknown is only returned by KindOf for errors not produced by this package.
	KindUnknown Kind = iota

	// KindConfiguration means required settings are missing or invalid.
	KindConfiguration

	// KindNetwork means the provider could not be reached, timed out, or the
	// operation was cancelled. Network failures are the only retryable kind.
	KindNetwork

	// KindProtocol means the provider answered with an OAuth error or a
	// response this client could not interpret.
	KindProtocol

	// KindValidation means a locally checked value was rejected.
	KindValidation

	// KindDeviceFlowTerminal means the device authorization ended and must be
	// restarted (expired_token, access_denied).
	KindDeviceFlowTerminal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindDeviceFlowTerminal:
		return "device_flow_terminal"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by this package.
type Error struct {
	Kind Kind

	// Op names the operation that failed (e.g. "exchange", "device_poll").
	Op string

	// Code is the OAuth error code when the provider supplied one.
	Code string

	// Description is a human-readable explanation. It never contains secrets.
	Description string

	// StatusCode is the provider's HTTP status, or 0 when no response was read.
	StatusCode int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("oauth")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind and, when target
// carries a code, the same code. This lets the package sentinels match any
// error of their category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotConfigured = &Error{Kind: KindConfiguration, Code: "not_configured", Description: "oauth client is not configured"}

	ErrExpiredToken = &Error{Kind: KindDeviceFlowTerminal, Code: ErrorCodeExpiredToken, Description: "device code expired"}

	ErrAccessDenied = &Error{Kind: KindDeviceFlowTerminal, Code: ErrorCodeAccessDenied, Description: "user denied the authorization request"}

	ErrDeviceFlowTimeout = &Error{Kind: KindNetwork, Code: "device_flow_timeout", Description: "device authorization timed out"}

	ErrStateMismatch = &Error{Kind: KindValidation, Code: "state_mismatch", Description: "state parameter does not match"}

	ErrUnknownState = &Error{Kind: KindValidation, Code: "unknown_state", Description: "no pending authorization for state"}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether retrying the same operation may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}

func newError(kind Kind, op, code, description string, err error) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Description: description, Err: err}
}

func configError(op, description string) *Error {
	return newError(KindConfiguration, op, ErrNotConfigured.Code, description, nil)
}

func validationError(op, description string) *Error {
	return newError(KindValidation, op, "invalid_request", description, nil)
}

// providerError is the error body shape of RFC 6749 section 5.2.
type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Message     string `json:"message"`
}

// parseProviderError extracts an OAuth error from a JSON or form-encoded body.
func parseProviderError(body []byte) (code, description string) {
	var pe providerError
	if err := json.Unmarshal(body, &pe); err == nil {
		if pe.Description == "" {
			pe.Description = pe.Message
		}
		return pe.Code, pe.Description
	}
	if vals, err := url.ParseQuery(string(body)); err == nil {
		return vals.Get("error"), vals.Get("error_description")
	}
	return "", ""
}

// classifyError maps an error from the oauth2 library or net/http onto an *Error.
func classifyError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindNetwork, op, "", "request cancelled or timed out", err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := newError(KindProtocol, op, re.ErrorCode, re.ErrorDescription, nil)
		if re.Response != nil {
			e.StatusCode = re.Response.StatusCode
		}
		if e.Code == "" {
			e.Code, e.Description = parseProviderError(re.Body)
		}
		if e.Code == "" && e.Description == "" {
			e.Description = "token endpoint rejected the request"
		}
		return e
	}

	var ne net.Error
	var ue *url.Error
	if errors.As(err, &ne) || errors.As(err, &ue) {
		return newError(KindNetwork, op, "", "provider unreachable", err)
	}

	return newError(KindProtocol, op, "", "unexpected provider response", err)
}
