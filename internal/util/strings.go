// Package util provides common utility functions and constants used across
// the ssh-doctor application. This package is intentionally kept
// dependency-free (no imports from other internal/* packages) to serve as a
// shared foundation without introducing circular dependencies.
package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// This is a general-purpose "coalesce" helper used when a value might be
// missing or blank and a sensible default should be substituted.
//
// Examples:
//
//	DefaultString("hello", "world")  → "hello"   // non-empty → kept
//	DefaultString("",      "world")  → "world"   // empty → fallback
//	DefaultString("  ",    "world")  → "world"   // whitespace-only → fallback
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace;
// otherwise it returns s unchanged.
//
// Used by the CLI and the wizard to display a visible placeholder when an
// optional field (such as User or IdentityFile) has no value. Showing "-"
// instead of a blank space makes table output easier to read and avoids
// ambiguity about whether a field was omitted versus set to an empty string.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// TruncateLine shortens s to at most n runes, appending an ellipsis when
// anything was cut. Used for single-line summaries of transcripts in status
// panels and journal output.
func TruncateLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
