//go:build !windows

package models

import "golang.org/x/sys/unix"

// statDisk returns the total and available bytes of the filesystem holding path.
func statDisk(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	return total, free, nil
}
