package instrumentation

import "testing"

func TestNormalizePollResponse(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"success", "success"},
		{"authorization_pending", "authorization_pending"},
		{"slow_down", "slow_down"},
		{"expired_token", "expired_token"},
		{"access_denied", "access_denied"},
		{"transport_error", "transport_error"},
		{"incorrect_device_code", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := NormalizePollResponse(tt.code); got != tt.expected {
				t.Errorf("NormalizePollResponse(%q) = %q, want %q", tt.code, got, tt.expected)
			}
		})
	}
}

func TestProviderHost(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://github.com/login/oauth/access_token", "github.com"},
		{"https://API.GitHub.com", "api.github.com"},
		{"http://127.0.0.1:8080/token", "127.0.0.1"},
		{"not a url", "unknown"},
		{"", "unknown"},
		{"::bad::", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ProviderHost(tt.url); got != tt.expected {
				t.Errorf("ProviderHost(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}
