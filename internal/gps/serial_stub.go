//go:build !linux

package gps

import (
	"errors"
	"fmt"
	"os"
)

// openSerial needs Linux termios; elsewhere use sim.ownship.
func openSerial(path string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("gps: serial %s at %d baud: %w", path, baud, errors.ErrUnsupported)
}
