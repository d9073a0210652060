// Package diagnose derives explanations and remediation plans from preflight
// reports and classified connection failures, and owns the per-host
// diagnostic session aggregate.
package diagnose

import (
	"fmt"

	"github.com/treykane/ssh-doctor/internal/model"
)

// AnalyzeRootCause combines a connection result with an optional preflight
// report into one prioritized explanation.
//
// A failing preflight check is a root cause; a failed handshake is a symptom
// of it. So preflight wins: the first failed check in canonical order is
// explained before any error-type analysis. Only identity-file-exists and
// identity-file-permissions carry dedicated explanations; any other failed
// check falls through to the error-type table.
func AnalyzeRootCause(result model.ConnectionTestResult, pf *model.PreflightResult) model.RootCauseAnalysis {
	if pf != nil {
		if failed, ok := pf.FirstFailed(); ok {
			switch failed.ID {
			case model.CheckIdentityExists:
				return model.RootCauseAnalysis{
					LikelyCause: "Missing identity file",
					Confidence:  model.ConfidenceHigh,
					Explanation: "The private key configured for this host does not exist on disk, so every authentication attempt fails before it starts.",
					RelatedIssues: []string{
						"The key may have been moved or deleted",
						"The IdentityFile path in ssh config may be wrong",
					},
				}
			case model.CheckIdentityPerms:
				return model.RootCauseAnalysis{
					LikelyCause: "Insecure key permissions",
					Confidence:  model.ConfidenceHigh,
					Explanation: "The private key is readable by other users, so ssh refuses to use it. " + failed.Message,
					RelatedIssues: []string{
						"ssh silently skips keys with lax permissions, which can look like a rejected key",
					},
				}
			}
		}
	}
	return analyzeErrorType(result)
}

func analyzeErrorType(result model.ConnectionTestResult) model.RootCauseAnalysis {
	switch result.ErrorType {
	case model.ErrHostKeyChanged:
		return model.RootCauseAnalysis{
			LikelyCause: "Server host key changed",
			Confidence:  model.ConfidenceHigh,
			Explanation: "The key presented by the server no longer matches the one recorded in known_hosts. This happens after a server reinstall, but can also indicate interception.",
			RelatedIssues: []string{
				"Verify the change is expected before trusting the new key",
			},
		}
	case model.ErrHostKeyUnknown:
		return model.RootCauseAnalysis{
			LikelyCause: "Server not in known_hosts",
			Confidence:  model.ConfidenceHigh,
			Explanation: "This server's host key has never been recorded, and batch mode cannot prompt to accept it.",
		}
	case model.ErrDNSFailed:
		return model.RootCauseAnalysis{
			LikelyCause: "Hostname does not resolve",
			Confidence:  model.ConfidenceHigh,
			Explanation: "DNS lookup for the hostname failed. The name is misspelled, or the resolver cannot reach it.",
			RelatedIssues: []string{
				"Check the HostName directive in your ssh config",
			},
		}
	case model.ErrIdentityFileNotFound:
		return model.RootCauseAnalysis{
			LikelyCause: "Missing identity file",
			Confidence:  model.ConfidenceHigh,
			Explanation: "ssh could not read the configured identity file.",
		}
	case model.ErrPublicKeyMissing:
		return model.RootCauseAnalysis{
			LikelyCause: "Missing public key file",
			Confidence:  model.ConfidenceHigh,
			Explanation: "The .pub companion of the private key is missing. Authentication can still work, but the key cannot be copied to new servers.",
		}
	case model.ErrPermissionDeniedKeyPerms:
		return model.RootCauseAnalysis{
			LikelyCause: "Insecure key permissions",
			Confidence:  model.ConfidenceHigh,
			Explanation: "ssh refused to use the private key because its file permissions are too open.",
		}
	case model.ErrPermissionDeniedPassphrase:
		return model.RootCauseAnalysis{
			LikelyCause: "Encrypted key not in agent",
			Confidence:  model.ConfidenceHigh,
			Explanation: "The key requires a passphrase and batch mode cannot prompt for one. Loading the key into the agent fixes this.",
		}
	case model.ErrPermissionDeniedNotInAgent:
		return model.RootCauseAnalysis{
			LikelyCause: "Agent holds no keys",
			Confidence:  model.ConfidenceHigh,
			Explanation: "An SSH agent is running but has no identities loaded, so nothing was offered to the server.",
		}
	case model.ErrPermissionDeniedWrongKey:
		return model.RootCauseAnalysis{
			LikelyCause: "Wrong key offered",
			Confidence:  model.ConfidenceMedium,
			Explanation: "Several keys were offered and none was accepted. The server may expect a key that was not tried, or was tried too late.",
			RelatedIssues: []string{
				"Pin the right key with IdentityFile plus IdentitiesOnly yes",
			},
		}
	case model.ErrPermissionDeniedAuthMethod:
		return model.RootCauseAnalysis{
			LikelyCause: "No acceptable authentication method",
			Confidence:  model.ConfidenceMedium,
			Explanation: "The server rejected every method offered. It may disallow your key type or require a method you did not offer.",
		}
	case model.ErrPermissionDenied:
		return model.RootCauseAnalysis{
			LikelyCause: "Key rejected by server",
			Confidence:  model.ConfidenceMedium,
			Explanation: "The handshake completed but the server rejected authentication. Most often the public key is not registered on the server.",
			RelatedIssues: []string{
				"Check that your public key is present in the server's authorized keys",
			},
		}
	case model.ErrConnectionRefused:
		return model.RootCauseAnalysis{
			LikelyCause: "Nothing listening on the port",
			Confidence:  model.ConfidenceMedium,
			Explanation: "The host is reachable but actively refused the connection. The SSH daemon may be down or listening on another port.",
		}
	case model.ErrTimeout:
		return model.RootCauseAnalysis{
			LikelyCause: "Host unreachable",
			Confidence:  model.ConfidenceMedium,
			Explanation: "The connection attempt timed out. A firewall may be dropping packets, or the host is offline.",
		}
	}

	explanation := "The failure did not match any known pattern."
	if result.ErrorDetails != nil && result.ErrorDetails.Suggestion != "" {
		explanation = fmt.Sprintf("%s %s", explanation, result.ErrorDetails.Suggestion)
	}
	return model.RootCauseAnalysis{
		LikelyCause: "Unknown failure",
		Confidence:  model.ConfidenceLow,
		Explanation: explanation,
	}
}
