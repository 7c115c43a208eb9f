package model

import (
	"net/mail"
	"strings"
)

// ValidEmail accepts a bare address (no display name) whose domain has a
// dot in it.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	_, domain, ok := strings.Cut(s, "@")
	return ok && strings.Contains(strings.Trim(domain, "."), ".")
}
