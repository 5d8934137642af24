package models

import (
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

const (
	MaxAddressLength   = 320
	MaxSubjectLength   = 5000
	MaxBodyLength      = 25000
	MaxMessageIDLength = 512

	NoSubjectPlaceholder = "No subject"
)

// ValidAddress reports whether s is a bare RFC 5322 address such as
// "user@example.com", without display name or angle brackets.
func ValidAddress(s string) bool {
	if s == "" || len(s) > MaxAddressLength {
		return false
	}
	addr, err := gomail.ParseAddress(s)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr.Address, s)
}

// CanonicalAddress lower-cases and trims an address for storage and comparison.
func CanonicalAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
