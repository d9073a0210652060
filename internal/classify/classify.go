// Package classify turns the raw transcript of one verbose SSH handshake
// into a structured error taxonomy entry. Classification is pure string
// matching over the combined stdout+stderr stream — no I/O — evaluated in a
// fixed priority order because several markers are substrings of others
// ("Permission denied" appears inside most auth failures, so the host key
// rules must win first).
//
// The Classifier interface is a strategy: TranscriptClassifier parses raw
// ssh -v output; a backend that already returns structured results can ship
// its own implementation against the same contract.
package classify

import (
	"regexp"
	"strings"

	"github.com/treykane/ssh-doctor/internal/model"
)

// Classifier maps one connection transcript to a taxonomy entry.
// A nil result means the transcript carries no recognizable failure.
type Classifier interface {
	Classify(transcript string) *model.ErrorDetails
}

// TranscriptClassifier classifies raw ssh verbose output.
type TranscriptClassifier struct{}

func New() *TranscriptClassifier { return &TranscriptClassifier{} }

var (
	permsTooOpenRe  = regexp.MustCompile(`Permissions\s+\d+\s+for\s+'([^']+)'\s+are too open`)
	identityMissRe  = regexp.MustCompile(`(?:no such identity|Identity file)[:\s]+([^\s:]+).*No such file or directory`)
	offeringKeyRe   = regexp.MustCompile(`Offering public key`)
	acceptsKeyRe    = regexp.MustCompile(`Server accepts key`)
	identityFileRe  = regexp.MustCompile(`identity file\s+(\S+)\s+type\s+(-?\d+)`)
	connectingToRe  = regexp.MustCompile(`Connecting to\s+(\S+?)\s+(?:\[|port)`)
	changedHostRe   = regexp.MustCompile(`(?:host key for|Offending .*key (?:for|in)|IDENTIFICATION HAS CHANGED.*?for)\s+'?([A-Za-z0-9._\[\]-]+)'?`)
	hostKeyColonRe  = regexp.MustCompile(`Host key for\s+(\S+)\s+has changed`)
	passphraseRe    = regexp.MustCompile(`(?i)(enter passphrase|incorrect passphrase|bad passphrase)`)
	resolveFailRe   = regexp.MustCompile(`(?i)(could not resolve hostname|name or service not known|nodename nor servname|no such host)`)
	timeoutRe       = regexp.MustCompile(`(?i)(connection timed out|operation timed out|timeout during|connect_to .* timed out)`)
	authMethodsRe   = regexp.MustCompile(`(?i)(no more authentication methods|no mutual signature algorithm|no supported authentication)`)
	noIdentitiesRe  = regexp.MustCompile(`(?i)agent has no identities`)
)

// Classify maps a transcript to a taxonomy entry, or nil if the transcript
// contains no recognizable failure marker.
func (c *TranscriptClassifier) Classify(transcript string) *model.ErrorDetails {
	if transcript == "" {
		return nil
	}

	// Host key problems outrank everything: their transcripts usually also
	// contain "Permission denied" noise from the aborted attempt.
	if strings.Contains(transcript, "REMOTE HOST IDENTIFICATION HAS CHANGED") ||
		strings.Contains(transcript, "Host key verification failed") && strings.Contains(transcript, "has changed") {
		details := &model.ErrorDetails{
			Type:       model.ErrHostKeyChanged,
			RawMessage: firstMatchingLine(transcript, "IDENTIFICATION HAS CHANGED", "has changed"),
			Suggestion: "The server's host key changed. If this is expected (server reinstall), remove the old key from known_hosts.",
			CanAutoFix: true,
			FixType:    model.FixRemoveKnownHost,
			FixParams:  map[string]string{},
		}
		if host := ExtractChangedHost(transcript); host != "" {
			details.FixParams["hostname"] = host
		}
		return details
	}

	if strings.Contains(transcript, "Host key verification failed") {
		details := &model.ErrorDetails{
			Type:       model.ErrHostKeyUnknown,
			RawMessage: firstMatchingLine(transcript, "Host key verification failed"),
			Suggestion: "This server is not in your known_hosts file yet. Add its host key to continue.",
			CanAutoFix: true,
			FixType:    model.FixAddKnownHost,
			FixParams:  map[string]string{},
		}
		if host := ExtractHostname(transcript); host != "" {
			details.FixParams["hostname"] = host
		}
		return details
	}

	if strings.Contains(transcript, "Permission denied") {
		return classifyPermissionDenied(transcript)
	}

	if m := identityMissRe.FindStringSubmatch(transcript); m != nil {
		return &model.ErrorDetails{
			Type:       model.ErrIdentityFileNotFound,
			RawMessage: firstMatchingLine(transcript, "No such file or directory"),
			Suggestion: "The configured identity file does not exist. Check your SSH config or generate a new key.",
			CanAutoFix: false,
			FixParams:  map[string]string{"keyPath": m[1]},
		}
	}

	if strings.Contains(transcript, "Connection refused") {
		return &model.ErrorDetails{
			Type:       model.ErrConnectionRefused,
			RawMessage: firstMatchingLine(transcript, "Connection refused"),
			Suggestion: "Connection refused. The SSH server may not be running, or a firewall is blocking the port.",
		}
	}
	if timeoutRe.MatchString(transcript) {
		return &model.ErrorDetails{
			Type:       model.ErrTimeout,
			RawMessage: firstMatchingLine(transcript, "timed out", "timeout"),
			Suggestion: "The connection timed out. Check your network connection and firewall settings.",
		}
	}
	if resolveFailRe.MatchString(transcript) {
		return &model.ErrorDetails{
			Type:       model.ErrDNSFailed,
			RawMessage: firstMatchingLine(transcript, "resolve", "not known", "no such host"),
			Suggestion: "The hostname could not be resolved. Check the hostname spelling in your SSH config.",
		}
	}

	return &model.ErrorDetails{
		Type:       model.ErrUnknown,
		RawMessage: lastNonEmptyLine(transcript),
		Suggestion: "The failure did not match a known pattern. Inspect the debug log for details.",
	}
}

// classifyPermissionDenied narrows a "Permission denied" transcript by
// examining why the server (or local ssh) rejected the attempt.
func classifyPermissionDenied(transcript string) *model.ErrorDetails {
	if m := permsTooOpenRe.FindStringSubmatch(transcript); m != nil {
		return &model.ErrorDetails{
			Type:       model.ErrPermissionDeniedKeyPerms,
			RawMessage: firstMatchingLine(transcript, "too open"),
			Suggestion: "Your private key file is readable by others, so ssh refuses to use it. Restrict it to mode 600.",
			CanAutoFix: true,
			FixType:    model.FixChmod,
			FixParams:  map[string]string{"keyPath": m[1]},
		}
	}
	if passphraseRe.MatchString(transcript) {
		details := &model.ErrorDetails{
			Type:       model.ErrPermissionDeniedPassphrase,
			RawMessage: firstMatchingLine(transcript, "assphrase"),
			Suggestion: "Your key requires a passphrase. Add it to the SSH agent so batch connections can use it.",
			CanAutoFix: true,
			FixType:    model.FixSSHAdd,
			FixParams:  map[string]string{},
		}
		if path := ExtractIdentityFile(transcript); path != "" {
			details.FixParams["keyPath"] = path
		}
		return details
	}
	if noIdentitiesRe.MatchString(transcript) {
		details := &model.ErrorDetails{
			Type:       model.ErrPermissionDeniedNotInAgent,
			RawMessage: firstMatchingLine(transcript, "no identities"),
			Suggestion: "Your SSH agent is running but holds no keys. Add your key with ssh-add.",
			CanAutoFix: true,
			FixType:    model.FixSSHAdd,
			FixParams:  map[string]string{},
		}
		if path := ExtractIdentityFile(transcript); path != "" {
			details.FixParams["keyPath"] = path
		}
		return details
	}
	if authMethodsRe.MatchString(transcript) {
		return &model.ErrorDetails{
			Type:       model.ErrPermissionDeniedAuthMethod,
			RawMessage: firstMatchingLine(transcript, "authentication methods", "signature algorithm"),
			Suggestion: "The server rejected every authentication method you offered. The server may not accept your key type.",
		}
	}
	// More than one key offered and none accepted is a weak hint that the
	// wrong key reached the server first. Multiplicity of offers is all
	// this checks; it does not verify an explicit rejection.
	if len(offeringKeyRe.FindAllStringIndex(transcript, -1)) > 1 && !acceptsKeyRe.MatchString(transcript) {
		return &model.ErrorDetails{
			Type:       model.ErrPermissionDeniedWrongKey,
			RawMessage: firstMatchingLine(transcript, "Permission denied"),
			Suggestion: "Several keys were offered and none was accepted. The server may expect a different key; pin one with IdentityFile and IdentitiesOnly.",
		}
	}
	return &model.ErrorDetails{
		Type:       model.ErrPermissionDenied,
		RawMessage: firstMatchingLine(transcript, "Permission denied"),
		Suggestion: "The server rejected your key. Check that your public key is registered on the server.",
	}
}

// successMarkers are positive platform greetings. Exit codes are never
// consulted: GitHub intentionally exits non-zero on a rejected shell even
// though authentication succeeded.
var successMarkers = []string{
	"successfully authenticated",
	"Welcome to GitLab",
	"logged in as",
}

// DetectSuccess reports whether the transcript contains a positive
// authentication greeting. Hosts with non-standard greetings outside this
// allow-list are reported as failures; that is a known limitation of
// non-interactive probing, not something to paper over.
func DetectSuccess(transcript string) bool {
	for _, m := range successMarkers {
		if strings.Contains(transcript, m) {
			return true
		}
	}
	lower := strings.ToLower(transcript)
	if strings.Contains(lower, "authenticated") && !strings.Contains(lower, "not authenticated") {
		return true
	}
	return strings.Contains(lower, "welcome")
}

// DetectPlatform names the Git hosting platform for a hostname, if any.
func DetectPlatform(hostname string) string {
	lower := strings.ToLower(hostname)
	switch {
	case strings.Contains(lower, "github.com"):
		return "github"
	case strings.Contains(lower, "bitbucket.org"):
		return "bitbucket"
	case strings.Contains(lower, "gitlab"):
		return "gitlab"
	}
	return ""
}

// ExtractHostname pulls the hostname ssh reported connecting to.
func ExtractHostname(transcript string) string {
	if m := connectingToRe.FindStringSubmatch(transcript); m != nil {
		return m[1]
	}
	return ""
}

// ExtractIdentityFile returns the identity file ssh actually offered: the
// last "identity file … type N" entry whose type is not the sentinel -1
// ("file absent").
func ExtractIdentityFile(transcript string) string {
	var last string
	for _, m := range identityFileRe.FindAllStringSubmatch(transcript, -1) {
		if m[2] == "-1" {
			continue
		}
		last = m[1]
	}
	return last
}

// ExtractChangedHost pulls the hostname out of a host-key-changed warning.
func ExtractChangedHost(transcript string) string {
	if m := hostKeyColonRe.FindStringSubmatch(transcript); m != nil {
		return strings.Trim(m[1], "'\"")
	}
	if m := changedHostRe.FindStringSubmatch(transcript); m != nil {
		return strings.Trim(m[1], "'\"")
	}
	return ExtractHostname(transcript)
}

func firstMatchingLine(transcript string, markers ...string) string {
	for _, line := range strings.Split(transcript, "\n") {
		for _, m := range markers {
			if strings.Contains(line, m) {
				return strings.TrimSpace(line)
			}
		}
	}
	return lastNonEmptyLine(transcript)
}

func lastNonEmptyLine(transcript string) string {
	lines := strings.Split(transcript, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
