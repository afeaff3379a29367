package util

import "testing"

func TestIsLoopbackHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		expected bool
	}{
		{"localhost", "localhost", true},
		{"IPv4 loopback", "127.0.0.1", true},
		{"IPv4 loopback range", "127.255.255.255", true},
		{"IPv6 loopback", "::1", true},
		{"IPv6 loopback bracketed", "[::1]", true},
		{"IPv4-mapped loopback", "::ffff:127.0.0.1", true},
		{"Unspecified", "0.0.0.0", false},
		{"IPv4 private", "10.0.0.1", false},
		{"Public hostname", "example.com", false},
		{"Localhost lookalike", "localhost.example.com", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsLoopbackHostname(tt.hostname)
			if got != tt.expected {
				t.Errorf("IsLoopbackHostname(%s) = %v, want %v", tt.hostname, got, tt.expected)
			}
		})
	}
}
