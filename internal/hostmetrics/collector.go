// Package hostmetrics samples local resource utilisation for heartbeats.
package hostmetrics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gomem "github.com/shirou/gopsutil/v4/mem"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

// System call wrappers for testing
var (
	cpuPercent    = gocpu.PercentWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	diskUsage     = godisk.UsageWithContext
	processPids   = goprocess.PidsWithContext
)

// Snapshot is one point-in-time utilisation sample in the shape heartbeats
// carry. Disk and process data are best effort and nil when unavailable.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   *float64
	ProcessCount  *int
}

// Collect gathers a snapshot. Memory stats are required; everything else
// degrades to absent.
func Collect(ctx context.Context) (Snapshot, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var snapshot Snapshot

	if usage, err := collectCPUUsage(collectCtx); err == nil {
		snapshot.CPUPercent = usage
	}

	memStats, err := virtualMemory(collectCtx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory stats: %w", err)
	}
	snapshot.MemoryPercent = memStats.UsedPercent

	if usage, err := diskUsage(collectCtx, rootPath()); err == nil && usage != nil {
		pct := usage.UsedPercent
		snapshot.DiskPercent = &pct
	}

	if pids, err := processPids(collectCtx); err == nil {
		n := len(pids)
		snapshot.ProcessCount = &n
	}

	return snapshot, nil
}

func collectCPUUsage(ctx context.Context) (float64, error) {
	percentages, err := cpuPercent(ctx, time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("no cpu usage reported")
	}
	return percentages[0], nil
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
