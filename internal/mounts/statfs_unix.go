//go:build linux || darwin || freebsd

package mounts

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func statfs(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Total: uint64(st.Blocks) * bsize,
		Free:  uint64(st.Bfree) * bsize,
		Avail: uint64(st.Bavail) * bsize,
	}, nil
}
