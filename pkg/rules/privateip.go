package rules

import (
	"strconv"
	"strings"
)

// IsPrivateIP reports whether an address belongs to a private, loopback,
// link-local, or unspecified range. Classification is prefix-based on
// the string form rather than a full address parse; empty input counts
// as private so that connections without a remote side fail safe toward
// "not suspicious".
func IsPrivateIP(ip string) bool {
	if ip == "" {
		return true
	}
	if strings.HasPrefix(ip, "127.") || strings.HasPrefix(ip, "10.") {
		return true
	}
	if strings.HasPrefix(ip, "192.168.") {
		return true
	}
	if strings.HasPrefix(ip, "172.") {
		parts := strings.Split(ip, ".")
		if len(parts) >= 2 {
			if second, err := strconv.Atoi(parts[1]); err == nil && second >= 16 && second <= 31 {
				return true
			}
		}
	}
	if ip == "::1" || strings.HasPrefix(ip, "fe80:") || ip == "::" {
		return true
	}
	return ip == "0.0.0.0"
}
