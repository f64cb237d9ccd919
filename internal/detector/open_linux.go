//go:build linux

package detector

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openReadOnly opens path without updating its access time where the kernel
// allows it. O_NOATIME requires file ownership, so EPERM falls back to a plain
// read-only open.
func openReadOnly(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOATIME, 0)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, unix.EPERM) {
		return os.OpenFile(path, os.O_RDONLY, 0)
	}
	return nil, err
}
