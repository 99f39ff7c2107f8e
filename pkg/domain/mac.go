package domain

import (
	"regexp"
	"strings"
)

// MAC is a hardware address used as the primary device identity key.
// Stored normalized: lowercase, colon-separated.
type MAC string

// macPattern matches six hex octet pairs separated by colons or dashes.
var macPattern = regexp.MustCompile(`^[0-9a-fA-F]{2}([:-][0-9a-fA-F]{2}){5}$`)

// ParseMAC validates and normalizes a candidate hardware address.
// Accepts colon- or dash-separated forms; returns the colon-separated
// lowercase form.
func ParseMAC(s string) (MAC, bool) {
	s = strings.TrimSpace(s)
	if !macPattern.MatchString(s) {
		return "", false
	}
	normalized := strings.ToLower(strings.ReplaceAll(s, "-", ":"))
	return MAC(normalized), true
}

// IsValidMAC reports whether s is a well-formed hardware address.
func IsValidMAC(s string) bool {
	_, ok := ParseMAC(s)
	return ok
}

func (m MAC) String() string { return string(m) }
