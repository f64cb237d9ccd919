//go:build !linux

package detector

import "os"

func openReadOnly(path string) (*os.File, error) {
	return os.Open(path)
}
