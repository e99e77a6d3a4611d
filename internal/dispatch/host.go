package dispatch

import (
	"bufio"
	"os"
	goruntime "runtime"
	"strconv"
	"strings"

	"github.com/nlsantos/devc/internal/config"
)

// measureHost gathers the host facts config.ValidateHostRequirements
// compares a devcontainer.json's hostRequirements against: logical CPU
// count, total memory, and free disk space for workspaceFolder.
func measureHost(workspaceFolder string) config.HostMeasurement {
	free, err := freeDiskBytes(workspaceFolder)
	if err != nil {
		free = 0
	}
	return config.HostMeasurement{
		LogicalCPUs: int64(goruntime.NumCPU()),
		TotalMemory: totalMemoryBytes(),
		FreeDisk:    free,
	}
}

// totalMemoryBytes reads /proc/meminfo's MemTotal line on Linux; other
// platforms report 0, which only ever fails a hostRequirements.memory
// check the caller can override with --ignore-host-requirements-failure.
func totalMemoryBytes() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
