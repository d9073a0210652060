// Package util provides common utility functions and constants used across
// the ssh-doctor application. This package is intentionally kept
// dependency-free (no imports from other internal/* packages) to serve as a
// shared foundation without introducing circular dependencies.
package util

import "time"

const (
	// ProbeTimeout bounds one full connection probe: process start, the
	// verbose handshake, and transcript collection. A probe that has not
	// produced a verdict within this window is classified as a timeout
	// rather than left hanging — the engine always runs non-interactively
	// and must never block on a prompt.
	// Used by: internal/probe (Prober.Probe) and internal/appconfig defaults.
	ProbeTimeout = 10 * time.Second

	// AddKeyTimeout bounds one ssh-add invocation. ssh-add normally returns
	// immediately; the only way it stalls is waiting for an interactive
	// passphrase prompt that the engine deliberately never answers. Hitting
	// this timeout is therefore itself a signal that the key is encrypted.
	// Used by: internal/agent (Client.Add).
	AddKeyTimeout = 5 * time.Second

	// KeyscanTimeout is passed to ssh-keyscan via -T and also bounds the
	// overall subprocess, with a small grace period for process teardown.
	// Used by: internal/knownhosts (scanHostKeys).
	KeyscanTimeout = 5 * time.Second

	// MaxIncludeDepth is the maximum nesting level for SSH config Include
	// directives, guarding against include cycles that escape the
	// cycle-detection map (e.g. via symlinks).
	// Used by: internal/config/parser.go (parseRecursive).
	MaxIncludeDepth = 16

	// DefaultRefreshSeconds is the fallback interval for the wizard's
	// periodic status refresh when config.yaml carries no usable value.
	DefaultRefreshSeconds = 3
)
