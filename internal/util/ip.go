package util

import (
	"fmt"
	"net"
	"sort"
)

// IPVersion returns the IP version (4 or 6)
func IPVersion(ipStr string) (int, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return 0, fmt.Errorf("invalid IP address: %s", ipStr)
	}
	if ip.To4() != nil {
		return 4, nil
	}
	return 6, nil
}

// SortedKeys returns the members of an address set in sorted order
func SortedKeys[V any](set map[string]V) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
