//go:build !unix

package detector

import "errors"

func mkfifo(string) error {
	return errors.New("fifos not supported")
}
