// Package permissions checks and repairs file-mode security on SSH key
// material. Private keys must be owner-only readable (0600, or 0400 for
// read-only keys); the ~/.ssh directory must be 0700.
package permissions

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckResult reports the security posture of one path.
type CheckResult struct {
	IsSecure     bool   `json:"is_secure"`
	CurrentMode  string `json:"current_mode,omitempty"`
	RequiredMode string `json:"required_mode"`
	Message      string `json:"message"`
	CanFix       bool   `json:"can_fix"`
}

// FixResult reports the outcome of a permission repair.
type FixResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	NewMode string `json:"new_mode,omitempty"`
}

// Oracle checks and fixes permissions on key material. Check never returns
// an error for a missing file; it reports IsSecure=false with CanFix=false
// and a human message instead.
type Oracle interface {
	CheckKey(path string) CheckResult
	FixKey(path string) FixResult
	CheckSSHDir() CheckResult
	FixSSHDir() FixResult
}

// OSOracle implements Oracle against the local filesystem.
type OSOracle struct{}

func New() *OSOracle { return &OSOracle{} }

const (
	keyMode    = os.FileMode(0o600)
	keyModeRO  = os.FileMode(0o400)
	sshDirMode = os.FileMode(0o700)
)

// CheckKey inspects a private key file. Mode 600 and the stricter 400 are
// both accepted.
func (o *OSOracle) CheckKey(path string) CheckResult {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				IsSecure:     false,
				RequiredMode: "600",
				Message:      fmt.Sprintf("key file does not exist: %s", path),
				CanFix:       false,
			}
		}
		return CheckResult{
			IsSecure:     false,
			RequiredMode: "600",
			Message:      fmt.Sprintf("could not inspect %s: %v", path, err),
			CanFix:       false,
		}
	}
	mode := st.Mode().Perm()
	modeStr := fmt.Sprintf("%03o", mode)
	if mode == keyMode || mode == keyModeRO {
		return CheckResult{
			IsSecure:     true,
			CurrentMode:  modeStr,
			RequiredMode: "600",
			Message:      "key permissions are correct",
			CanFix:       false,
		}
	}
	return CheckResult{
		IsSecure:     false,
		CurrentMode:  modeStr,
		RequiredMode: "600",
		Message:      fmt.Sprintf("key permissions are %s but should be 600; the file is too accessible", modeStr),
		CanFix:       true,
	}
}

// FixKey sets a private key file to 0600 and verifies the result.
func (o *OSOracle) FixKey(path string) FixResult {
	if _, err := os.Stat(path); err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("key file does not exist: %s", path)}
	}
	if err := os.Chmod(path, keyMode); err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("chmod failed: %v", err)}
	}
	st, err := os.Stat(path)
	if err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("verify failed: %v", err)}
	}
	newMode := fmt.Sprintf("%03o", st.Mode().Perm())
	return FixResult{
		Success: st.Mode().Perm() == keyMode,
		Message: fmt.Sprintf("permissions set to %s", newMode),
		NewMode: newMode,
	}
}

// CheckSSHDir inspects ~/.ssh, which must be 0700.
func (o *OSOracle) CheckSSHDir() CheckResult {
	dir, err := sshDir()
	if err != nil {
		return CheckResult{
			IsSecure:     false,
			RequiredMode: "700",
			Message:      fmt.Sprintf("could not resolve home directory: %v", err),
			CanFix:       false,
		}
	}
	st, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				IsSecure:     false,
				RequiredMode: "700",
				Message:      "SSH directory does not exist",
				CanFix:       true,
			}
		}
		return CheckResult{
			IsSecure:     false,
			RequiredMode: "700",
			Message:      fmt.Sprintf("could not inspect %s: %v", dir, err),
			CanFix:       false,
		}
	}
	mode := st.Mode().Perm()
	modeStr := fmt.Sprintf("%03o", mode)
	if mode == sshDirMode {
		return CheckResult{
			IsSecure:     true,
			CurrentMode:  modeStr,
			RequiredMode: "700",
			Message:      "SSH directory permissions are correct",
		}
	}
	return CheckResult{
		IsSecure:     false,
		CurrentMode:  modeStr,
		RequiredMode: "700",
		Message:      fmt.Sprintf("SSH directory permissions are %s but should be 700", modeStr),
		CanFix:       true,
	}
}

// FixSSHDir creates ~/.ssh if needed and sets it to 0700.
func (o *OSOracle) FixSSHDir() FixResult {
	dir, err := sshDir()
	if err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("could not resolve home directory: %v", err)}
	}
	if err := os.MkdirAll(dir, sshDirMode); err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("create directory failed: %v", err)}
	}
	if err := os.Chmod(dir, sshDirMode); err != nil {
		return FixResult{Success: false, Message: fmt.Sprintf("chmod failed: %v", err)}
	}
	return FixResult{Success: true, Message: "SSH directory permissions set to 700", NewMode: "700"}
}

func sshDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh"), nil
}
