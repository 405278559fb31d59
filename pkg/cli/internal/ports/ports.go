// Package ports provides port availability checking.
package ports

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ErrInUse is returned by Check when another process holds the port.
var ErrInUse = errors.New("port already in use")

// Check binds port on all interfaces and releases it again. It returns
// ErrInUse when the address is taken.
func Check(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d is out of range (1-65535)", port)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %d", ErrInUse, port)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("could not bind port %d: %w", port, err)
		}
		return fmt.Errorf("failed to check port %d availability: %w", port, err)
	}
	_ = ln.Close()
	return nil
}
