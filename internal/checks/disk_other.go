//go:build !linux

package checks

import (
	"fmt"
	"runtime"
)

func diskUsedPercent(path string) (float64, error) {
	return 0, fmt.Errorf("disk usage for %s is not supported on %s", path, runtime.GOOS)
}
