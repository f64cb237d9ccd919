//go:build !linux && !darwin && !freebsd

package mounts

func statfs(string) (Usage, error) {
	return Usage{}, ErrUnsupported
}
