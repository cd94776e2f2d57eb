// Package sysinfo collects the live system snapshot shown on the dashboard.
package sysinfo

import (
	"context"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/logging"
)

var log = logging.L("sysinfo")

// OSInfo describes the operating system.
type OSInfo struct {
	Platform     string `json:"platform" yaml:"platform"`
	Version      string `json:"version" yaml:"version"`
	Build        string `json:"build,omitempty" yaml:"build,omitempty"`
	Architecture string `json:"architecture" yaml:"architecture"`
}

type CPUInfo struct {
	Model        string  `json:"model" yaml:"model"`
	Cores        int     `json:"cores" yaml:"cores"`
	Threads      int     `json:"threads" yaml:"threads"`
	UsagePercent float64 `json:"usagePercent" yaml:"usagePercent"`
}

type MemoryInfo struct {
	TotalBytes  uint64  `json:"totalBytes" yaml:"totalBytes"`
	UsedBytes   uint64  `json:"usedBytes" yaml:"usedBytes"`
	UsedPercent float64 `json:"usedPercent" yaml:"usedPercent"`
}

// Volume is a mounted fixed-disk partition.
type Volume struct {
	Mountpoint  string  `json:"mountpoint" yaml:"mountpoint"`
	Fstype      string  `json:"fstype" yaml:"fstype"`
	TotalBytes  uint64  `json:"totalBytes" yaml:"totalBytes"`
	FreeBytes   uint64  `json:"freeBytes" yaml:"freeBytes"`
	UsedPercent float64 `json:"usedPercent" yaml:"usedPercent"`
}

// PhysicalDisk is a fixed drive as reported by the hardware.
type PhysicalDisk struct {
	Model     string `json:"model" yaml:"model"`
	SizeBytes uint64 `json:"sizeBytes" yaml:"sizeBytes"`
}

// Snapshot is one collection pass. Fields a source could not fill stay zero.
type Snapshot struct {
	Hostname      string         `json:"hostname" yaml:"hostname"`
	UserName      string         `json:"userName,omitempty" yaml:"userName,omitempty"`
	OS            OSInfo         `json:"os" yaml:"os"`
	CPU           CPUInfo        `json:"cpu" yaml:"cpu"`
	Memory        MemoryInfo     `json:"memory" yaml:"memory"`
	Volumes       []Volume       `json:"volumes" yaml:"volumes"`
	PhysicalDisks []PhysicalDisk `json:"physicalDisks,omitempty" yaml:"physicalDisks,omitempty"`
	GPUs          []string       `json:"gpus,omitempty" yaml:"gpus,omitempty"`
	BootTime      time.Time      `json:"bootTime" yaml:"bootTime"`
	UptimeSeconds uint64         `json:"uptimeSeconds" yaml:"uptimeSeconds"`
	CollectedAt   time.Time      `json:"collectedAt" yaml:"collectedAt"`
}

// Uptime returns the uptime as a duration.
func (s *Snapshot) Uptime() time.Duration {
	return time.Duration(s.UptimeSeconds) * time.Second
}

// Source provides the raw readings. The default source is gopsutil plus WMI
// on Windows.
type Source interface {
	Host(ctx context.Context) (*host.InfoStat, error)
	CPUs(ctx context.Context) ([]cpu.InfoStat, error)
	LogicalCPUs(ctx context.Context) (int, error)
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
	Usage(ctx context.Context, mountpoint string) (*disk.UsageStat, error)
	GPUs(ctx context.Context) ([]string, error)
	PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error)
}

// Collector assembles snapshots from a Source.
type Collector struct {
	src    Source
	health *health.Monitor
	now    func() time.Time
}

// NewCollector creates a collector. src nil selects the platform source and
// monitor may be nil.
func NewCollector(src Source, monitor *health.Monitor) *Collector {
	if src == nil {
		src = platformSource{}
	}
	return &Collector{src: src, health: monitor, now: time.Now}
}

// minVolumeBytes drops recovery and boot partitions.
const minVolumeBytes = 100 * 1024 * 1024

var pseudoFilesystems = []string{"squashfs", "tmpfs", "devfs", "overlay", "proc", "sysfs"}

// Collect reads every source. Individual source failures are logged and leave
// their fields zero; only a cancelled context is returned as an error.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	start := c.now()
	snap := &Snapshot{
		OS:          OSInfo{Architecture: runtime.GOARCH},
		CollectedAt: start,
	}

	if u, err := user.Current(); err == nil {
		snap.UserName = u.Username
	}

	c.gather("host", func() error {
		info, err := c.src.Host(ctx)
		if err != nil {
			return err
		}
		snap.Hostname = info.Hostname
		snap.OS.Platform = info.Platform
		snap.OS.Version = strings.TrimSpace(info.PlatformVersion)
		snap.OS.Build = info.KernelVersion
		if info.KernelArch != "" {
			snap.OS.Architecture = info.KernelArch
		}
		snap.UptimeSeconds = info.Uptime
		if info.BootTime > 0 {
			snap.BootTime = time.Unix(int64(info.BootTime), 0)
		}
		return nil
	})

	c.gather("cpu", func() error {
		infos, err := c.src.CPUs(ctx)
		if err != nil {
			return err
		}
		if len(infos) > 0 {
			snap.CPU.Model = strings.TrimSpace(infos[0].ModelName)
		}
		for _, info := range infos {
			snap.CPU.Cores += int(info.Cores)
		}
		if threads, err := c.src.LogicalCPUs(ctx); err == nil {
			snap.CPU.Threads = threads
		}
		pct, err := c.src.CPUPercent(ctx)
		if err != nil {
			return err
		}
		snap.CPU.UsagePercent = pct
		return nil
	})

	c.gather("memory", func() error {
		vm, err := c.src.Memory(ctx)
		if err != nil {
			return err
		}
		snap.Memory = MemoryInfo{TotalBytes: vm.Total, UsedBytes: vm.Used, UsedPercent: vm.UsedPercent}
		return nil
	})

	c.gather("disk", func() error {
		vols, err := c.volumes(ctx)
		snap.Volumes = vols
		return err
	})

	c.gather("gpu", func() error {
		gpus, err := c.src.GPUs(ctx)
		snap.GPUs = gpus
		return err
	})

	c.gather("physical-disk", func() error {
		disks, err := c.src.PhysicalDisks(ctx)
		snap.PhysicalDisks = disks
		return err
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug("system snapshot collected", logging.KeyDurationMs, c.now().Sub(start).Milliseconds())
	return snap, nil
}

func (c *Collector) gather(name string, fn func() error) {
	check := "sysinfo:" + name
	if err := fn(); err != nil {
		c.health.Update(check, health.Degraded, err.Error())
		log.Warn("system source failed", "source", name, logging.KeyError, err)
		return
	}
	c.health.Update(check, health.Healthy, "")
}

func (c *Collector) volumes(ctx context.Context) ([]Volume, error) {
	partitions, err := c.src.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var vols []Volume
	seen := make(map[string]bool)
	for _, p := range partitions {
		if p.Mountpoint == "" || seen[p.Mountpoint] || isPseudoFS(p.Fstype) {
			continue
		}
		usage, err := c.src.Usage(ctx, p.Mountpoint)
		if err != nil {
			log.Debug("skipping volume", logging.KeyPath, p.Mountpoint, logging.KeyError, err)
			continue
		}
		if usage.Total < minVolumeBytes {
			continue
		}
		seen[p.Mountpoint] = true
		vols = append(vols, Volume{
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			TotalBytes:  usage.Total,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}
	return vols, nil
}

func isPseudoFS(fstype string) bool {
	for _, prefix := range pseudoFilesystems {
		if strings.HasPrefix(fstype, prefix) {
			return true
		}
	}
	return false
}

// platformSource reads through gopsutil. GPUs and PhysicalDisks are
// platform specific.
type platformSource struct{}

func (platformSource) Host(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}

func (platformSource) CPUs(ctx context.Context) ([]cpu.InfoStat, error) {
	return cpu.InfoWithContext(ctx)
}

func (platformSource) LogicalCPUs(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

// CPUPercent samples over a short window; a zero interval would compare
// against the previous call and report 0 on the first one.
func (platformSource) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, nil
	}
	return pct[0], nil
}

func (platformSource) Memory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (platformSource) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func (platformSource) Usage(ctx context.Context, mountpoint string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, mountpoint)
}
