package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/authflow/internal/audit"
	"github.com/teemow/authflow/internal/instrumentation"
	"github.com/teemow/authflow/internal/logging"
)

// InitiateDeviceFlow starts an RFC 8628 device authorization. scopes
// overrides the configured scopes when non-empty.
func (m *Manager) InitiateDeviceFlow(ctx context.Context, scopes []string) (*DeviceFlowSession, error) {
	const op = instrumentation.OperationDeviceInitiate
	if err := m.ready(op); err != nil {
		return nil, err
	}
	if m.cfg.DeviceAuthorizationEndpoint == "" {
		return nil, configError(op, "device authorization endpoint is not configured")
	}

	ctx, span := m.startSpan(ctx, op, GrantTypeDeviceCode)
	defer span.End()
	start := m.now()

	c := *m.oauthConfig
	if len(scopes) > 0 {
		c.Scopes = append([]string(nil), scopes...)
	}

	da, err := c.DeviceAuth(m.clientContext(ctx))
	if err == nil && da.DeviceCode == "" {
		err = newError(KindProtocol, op, "", "device authorization response has no device_code", nil)
	}
	if err != nil {
		oe := classifyError(op, err)
		m.finish(ctx, span, op, start, oe)
		audit.Record(ctx, m.sink, audit.ActionDeviceFlowInitiated, audit.OutcomeFailure, auditSource, errorDetails(oe))
		return nil, oe
	}

	now := m.now()
	session := &DeviceFlowSession{
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		Interval:                int(da.Interval),
		InitiatedAt:             now,
	}
	// oauth2 stamps Expiry with the wall clock; carry the remaining lifetime
	// over to the manager's clock.
	lifetime := DeviceFlowTimeout
	if !da.Expiry.IsZero() {
		lifetime = time.Until(da.Expiry).Round(time.Second)
	}
	session.ExpiresAt = now.Add(lifetime)
	session.ExpiresIn = int(lifetime / time.Second)

	m.finish(ctx, span, op, start, nil)
	audit.Record(ctx, m.sink, audit.ActionDeviceFlowInitiated, audit.OutcomeSuccess, auditSource, map[string]string{
		"verification_uri": session.VerificationURI,
		"interval":         strconv.Itoa(session.Interval),
		"scopes":           strings.Join(c.Scopes, ","),
	})
	m.logger.Info("Device authorization started", slog.Any("session", session))
	return session, nil
}

// PollDeviceFlow polls for the token of a session returned by
// InitiateDeviceFlow. The 15 minute ceiling counts from the session's
// initiation.
func (m *Manager) PollDeviceFlow(ctx context.Context, session *DeviceFlowSession) (*TokenResponse, error) {
	if session == nil || session.DeviceCode == "" {
		return nil, validationError(instrumentation.OperationDevicePoll, "device session is required")
	}
	started := session.InitiatedAt
	if started.IsZero() {
		started = m.now()
	}
	return m.pollDevice(ctx, session.DeviceCode, session.PollInterval(), started)
}

// PollDeviceFlowToken polls for the token of deviceCode, starting the 15
// minute ceiling now.
//
// authorization_pending waits one interval; slow_down also adds 5s to the
// interval for the rest of the flow; expired_token and access_denied end
// the flow. Anything else, including transport failures, is treated as
// transient. Cancelling ctx stops polling.
func (m *Manager) PollDeviceFlowToken(ctx context.Context, deviceCode string, interval time.Duration) (*TokenResponse, error) {
	if deviceCode == "" {
		return nil, validationError(instrumentation.OperationDevicePoll, "device code is required")
	}
	if interval <= 0 {
		interval = DefaultDevicePollInterval
	}
	return m.pollDevice(ctx, deviceCode, interval, m.now())
}

func (m *Manager) pollDevice(ctx context.Context, deviceCode string, interval time.Duration, started time.Time) (*TokenResponse, error) {
	const op = instrumentation.OperationDevicePoll
	if err := m.ready(op); err != nil {
		return nil, err
	}

	ctx, span := m.startSpan(ctx, op, GrantTypeDeviceCode)
	defer span.End()

	deadline := started.Add(DeviceFlowTimeout)
	logger := logging.WithOperation(m.logger, op)

	fail := func(err *Error) (*TokenResponse, error) {
		m.finish(ctx, span, op, started, err)
		audit.Record(ctx, m.sink, audit.ActionDeviceFlowCompleted, audit.OutcomeFailure, auditSource, errorDetails(err))
		return nil, err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(newError(KindNetwork, op, "cancelled", "device flow polling cancelled", err))
		}
		if !m.now().Before(deadline) {
			e := newError(KindNetwork, op, ErrDeviceFlowTimeout.Code,
				fmt.Sprintf("device authorization not completed within %s", DeviceFlowTimeout), lastErr)
			return fail(e)
		}

		res, err := m.requestDeviceToken(ctx, deviceCode)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fail(newError(KindNetwork, op, "cancelled", "device flow polling cancelled", ctx.Err()))
			}
			m.metrics.RecordDevicePoll(ctx, instrumentation.PollResponseTransportError)
			if mentionsExpiry(err) {
				return fail(newError(KindDeviceFlowTerminal, op, ErrorCodeExpiredToken, "device code expired", err))
			}
			lastErr = err
			logger.Warn("Device token poll failed, retrying",
				slog.Int("attempt", attempt), logging.Err(err))

		case res.token != nil:
			m.metrics.RecordDevicePoll(ctx, instrumentation.PollResponseSuccess)
			m.finish(ctx, span, op, started, nil)
			audit.Record(ctx, m.sink, audit.ActionDeviceFlowCompleted, audit.OutcomeSuccess, auditSource, map[string]string{
				"attempts": strconv.Itoa(attempt),
				"scope":    res.token.Scope,
			})
			return res.token, nil

		default:
			m.metrics.RecordDevicePoll(ctx, instrumentation.NormalizePollResponse(res.code))
			switch res.code {
			case ErrorCodeAuthorizationPending:
			case ErrorCodeSlowDown:
				interval += SlowDownIncrement
				logger.Debug("Provider asked to slow down", slog.Duration("interval", interval))
			case ErrorCodeExpiredToken, ErrorCodeAccessDenied:
				e := newError(KindDeviceFlowTerminal, op, res.code, res.description, nil)
				e.StatusCode = res.status
				return fail(e)
			default:
				lastErr = newError(KindProtocol, op, res.code, res.description, nil)
				logger.Warn("Unexpected device token response, retrying",
					slog.Int("attempt", attempt),
					slog.String("error_code", res.code),
					slog.Int("status", res.status))
			}
		}

		wait := interval
		if remaining := deadline.Sub(m.now()); remaining < wait {
			wait = remaining
		}
		if err := m.sleep(ctx, wait); err != nil {
			return fail(newError(KindNetwork, op, "cancelled", "device flow polling cancelled", err))
		}
	}
}

type pollResult struct {
	token       *TokenResponse
	code        string
	description string
	status      int
}

// deviceTokenBody covers both the success and error shapes of a token response.
type deviceTokenBody struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// requestDeviceToken performs one token request for deviceCode. Only
// transport failures are returned as errors.
func (m *Manager) requestDeviceToken(ctx context.Context, deviceCode string) (pollResult, error) {
	form := url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {deviceCode},
		"client_id":   {m.cfg.ClientID},
	}
	if m.cfg.ClientSecret != "" {
		form.Set("client_secret", m.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pollResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return pollResult{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return pollResult{}, err
	}

	body, ok := decodeDeviceTokenBody(raw)
	res := pollResult{status: resp.StatusCode}
	switch {
	case ok && body.Error != "":
		res.code = body.Error
		res.description = body.ErrorDescription
	case ok && body.AccessToken != "" && resp.StatusCode >= 200 && resp.StatusCode <= 299:
		tok := &TokenResponse{
			AccessToken:  body.AccessToken,
			TokenType:    body.TokenType,
			Scope:        body.Scope,
			RefreshToken: body.RefreshToken,
			ExpiresIn:    body.ExpiresIn,
		}
		if tok.TokenType == "" {
			tok.TokenType = DefaultTokenType
		}
		if tok.ExpiresIn > 0 {
			tok.ExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		}
		res.token = tok
	default:
		res.description = fmt.Sprintf("unexpected token response (HTTP %d)", resp.StatusCode)
	}
	return res, nil
}

func decodeDeviceTokenBody(raw []byte) (deviceTokenBody, bool) {
	var body deviceTokenBody
	if err := json.Unmarshal(raw, &body); err == nil {
		return body, true
	}
	vals, err := url.ParseQuery(string(raw))
	if err != nil {
		return body, false
	}
	body.AccessToken = vals.Get("access_token")
	body.TokenType = vals.Get("token_type")
	body.Scope = vals.Get("scope")
	body.RefreshToken = vals.Get("refresh_token")
	body.Error = vals.Get("error")
	body.ErrorDescription = vals.Get("error_description")
	if v := vals.Get("expires_in"); v != "" {
		body.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
	}
	return body, body.AccessToken != "" || body.Error != ""
}

func mentionsExpiry(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "expired")
}
