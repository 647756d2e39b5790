//go:build linux

package checks

import (
	"fmt"
	"syscall"
)

// diskUsedPercent reports the used share of the filesystem holding path, computed like df(1).
func diskUsedPercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	used := float64(stat.Blocks-stat.Bfree) * float64(stat.Bsize)
	avail := float64(stat.Bavail) * float64(stat.Bsize)
	if used+avail == 0 {
		return 0, nil
	}

	return 100 * used / (used + avail), nil
}
