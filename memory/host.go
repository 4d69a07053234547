package memory

import (
	"os"
	"strconv"
	"strings"
	"sync"

	sysmem "github.com/pbnjay/memory"
)

// cgroup files holding the memory limit of the current process (v2, v1).
var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

var (
	hostLimitOnce sync.Once
	hostLimit     int64
)

// Get the number of bytes the host can back: the physical memory size
// capped by the cgroup limit of the process, if any. Returns MaxAllocation
// when neither can be detected.
func HostLimit() int64 {
	hostLimitOnce.Do(func() {
		hostLimit = MaxAllocation
		if total := sysmem.TotalMemory(); total > 0 && total < uint64(hostLimit) {
			hostLimit = int64(total)
		}
		if limit, ok := cgroupLimit(); ok && limit < hostLimit {
			hostLimit = limit
		}
	})
	return hostLimit
}

func cgroupLimit() (int64, bool) {
	for _, file := range cgroupLimitFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		value := strings.TrimSpace(string(data))
		if value == "max" {
			return 0, false
		}
		limit, err := strconv.ParseInt(value, 10, 64)
		if err != nil || limit <= 0 {
			continue
		}
		return limit, true
	}
	return 0, false
}
