//go:build linux || darwin

package filestore

import "golang.org/x/sys/unix"

// volumeSpace returns the size and the space available to unprivileged
// users of the volume holding path
func volumeSpace(path string) (total, available uint64, ok bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, false
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, true
}
