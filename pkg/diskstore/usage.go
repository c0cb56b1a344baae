// +build !windows

package diskstore

import "syscall"

// usagePercent reports how full the filesystem holding root is, 0-100.
// Errors (root missing, statfs failure) read as 0 so that callers treat
// an unmeasurable backend as having room.
func usagePercent(root string) float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return 0
	}
	if stat.Blocks == 0 {
		return 0
	}
	return 100 * (1 - float64(stat.Bavail)/float64(stat.Blocks))
}
