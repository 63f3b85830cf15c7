package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.0.0.5", true},
		{"192.168.1.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"0.0.0.0", true},
		{"::", true},
		{"", true},
		{"172.32.0.1", false},
		{"172.15.0.1", false},
		{"8.8.8.8", false},
		{"203.0.113.5", false},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, IsPrivateIP(tt.ip), "classification of %q", tt.ip)
		})
	}
}

func TestIsPrivateIPMalformed172(t *testing.T) {
	// A non-numeric second octet falls through the 172.16/12 check
	// instead of failing; the address then classifies by the remaining
	// checks only.
	assert.False(t, IsPrivateIP("172.abc.0.1"))
	assert.False(t, IsPrivateIP("172."))
}
