package domain

import "strings"

// KeysMatch is the fuzzy comparator applied to every foreign reference
// field against an order key. Upstream systems label the same order
// inconsistently ("OT-2025-013", "13", "2025013", free-text notes carrying
// the code), so comparisons are layered, tried in order until one succeeds:
//
//  1. exact equality
//  2. lowercase alphanumeric normalization, substring either direction
//  3. digit-only extraction, equality
//  4. raw case-insensitive substring either direction
func KeysMatch(orderKey, reference string) bool {
	orderKey = strings.TrimSpace(orderKey)
	reference = strings.TrimSpace(reference)
	if orderKey == "" || reference == "" {
		return false
	}

	if orderKey == reference {
		return true
	}

	normKey := normalizeAlnum(orderKey)
	normRef := normalizeAlnum(reference)
	if normKey != "" && normRef != "" &&
		(strings.Contains(normKey, normRef) || strings.Contains(normRef, normKey)) {
		return true
	}

	digitsKey := digitsOnly(orderKey)
	digitsRef := digitsOnly(reference)
	if digitsKey != "" && digitsKey == digitsRef {
		return true
	}

	lowerKey := strings.ToLower(orderKey)
	lowerRef := strings.ToLower(reference)
	return strings.Contains(lowerKey, lowerRef) || strings.Contains(lowerRef, lowerKey)
}

func normalizeAlnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
