package util

import "fmt"

const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort rejects ports outside 1-65535. Used before handing a port to
// ssh-keyscan, which would otherwise fail with a less helpful message.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range (must be %d-%d)", port, MinPort, MaxPort)
	}
	return nil
}
