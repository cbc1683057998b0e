package metrics_collectors

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// ProcessMetrics is the resource usage of the agent process.
type ProcessMetrics struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// ProcessMetricCollector collects CPU and memory usage of the running agent.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
	pid    int32
}

// NewProcessMetricCollector creates a collector for the current process.
func NewProcessMetricCollector(logger zerolog.Logger) *ProcessMetricCollector {
	return &ProcessMetricCollector{Logger: logger, pid: int32(os.Getpid())}
}

func (p *ProcessMetricCollector) Name() string {
	return "process"
}

func (p *ProcessMetricCollector) Collect(context.Context) any {
	proc, err := process.NewProcess(p.pid)
	if err != nil {
		p.Logger.Error().Err(err).Int32("pid", p.pid).Msg("Failed to open agent process")
		return nil
	}

	metrics := &ProcessMetrics{}
	if cpu, err := proc.CPUPercent(); err == nil {
		metrics.CPUPercent = cpu
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get CPU usage")
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		metrics.RSSBytes = mem.RSS
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get memory information")
	}
	if threads, err := proc.NumThreads(); err == nil {
		metrics.Threads = threads
	}
	return metrics
}

func (p *ProcessMetricCollector) Unit() string {
	return "varied (CPU: %, Memory: bytes)"
}
