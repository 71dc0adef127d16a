package instrumentation

import (
	"net/url"
	"strings"
)

// Cardinality management helpers for metrics.
// Provider responses and URLs are external input, so label values derived from
// them are folded into a fixed set before they reach a metric.

// Device flow poll responses used as metric label values.
const (
	PollResponseSuccess        = "success"
	PollResponsePending        = "authorization_pending"
	PollResponseSlowDown       = "slow_down"
	PollResponseExpired        = "expired_token"
	PollResponseDenied         = "access_denied"
	PollResponseTransportError = "transport_error"
	PollResponseOther          = "other"
)

// NormalizePollResponse maps a provider error code to a bounded label value.
// Unknown codes collapse into "other".
//
// Example:
//
//	NormalizePollResponse("slow_down")            // "slow_down"
//	NormalizePollResponse("incorrect_device_code") // "other"
func NormalizePollResponse(code string) string {
	switch code {
	case PollResponseSuccess, PollResponsePending, PollResponseSlowDown,
		PollResponseExpired, PollResponseDenied, PollResponseTransportError:
		return code
	default:
		return PollResponseOther
	}
}

// ProviderHost extracts the lower-cased host of an endpoint URL for use as a
// label. Unparseable input yields "unknown".
//
// Example:
//
//	ProviderHost("https://GitHub.com/login/oauth/access_token") // "github.com"
//	ProviderHost("::bad::")                                   // "unknown"
func ProviderHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
