package agents

import (
	"context"
	"fmt"
	"time"

	"ai-orchestrator/pkg/types"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics 主机健康快照
type HostMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
	Uptime      uint64  `json:"uptime"`
}

// Probe 采集主机指标
type Probe func(ctx context.Context) (*HostMetrics, error)

// SystemProbe 使用 gopsutil 采集本机指标
func SystemProbe(ctx context.Context) (*HostMetrics, error) {
	// CPU使用率，采样窗口内的平均值
	cpuPercent, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return nil, fmt.Errorf("getting CPU usage: %w", err)
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting memory info: %w", err)
	}

	diskInfo, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("getting disk info: %w", err)
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting host info: %w", err)
	}

	metrics := &HostMetrics{
		MemoryUsage: memInfo.UsedPercent,
		DiskUsage:   diskInfo.UsedPercent,
		Uptime:      hostInfo.Uptime,
	}
	if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}
	return metrics, nil
}

// devopsDetails 健康检查的详情
type devopsDetails struct {
	Summary string       `json:"summary"`
	Host    *HostMetrics `json:"host,omitempty"`
	Error   string       `json:"probe_error,omitempty"`
}

// DevOpsAgent 夜间健康检查代理
type DevOpsAgent struct {
	probe Probe
}

// NewDevOpsAgent 创建健康检查代理，probe 为空时不采集主机指标
func NewDevOpsAgent(probe Probe) *DevOpsAgent {
	return &DevOpsAgent{probe: probe}
}

func (a *DevOpsAgent) Name() string { return "DevOps Agent" }

func (a *DevOpsAgent) Description() string {
	return "Site reliability and build automation engineer. Parses build logs, " +
		"watches nightly test suites for regressions and tracks dependency drift."
}

// Execute 执行健康检查，采集失败只记入详情，不视为异常
func (a *DevOpsAgent) Execute(ctx context.Context, payload types.JSON) (*Result, error) {
	details := devopsDetails{Summary: "All tests passed. Next.js cache hit ratio optimal."}

	if a.probe != nil {
		metrics, err := a.probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			details.Error = err.Error()
		} else {
			details.Host = metrics
		}
	}

	data, err := types.NewJSON(details)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Action:  "Analyzed Build Logs",
		Details: data,
	}, nil
}
