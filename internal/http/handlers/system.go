package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/pkg/format"
)

// SystemHandler reports host, runtime and application statistics.
type SystemHandler struct {
	db      *gorm.DB
	session SnapshotProvider
	logos   *logocache.Cache
	dataDir string
}

// NewSystemHandler creates a new system handler. dataDir is the
// directory whose disk usage is reported, normally the tvgrid data
// directory.
func NewSystemHandler(db *gorm.DB, session SnapshotProvider, dataDir string) *SystemHandler {
	return &SystemHandler{
		db:      db,
		session: session,
		dataDir: dataDir,
	}
}

// WithLogoCache includes logo cache statistics in the report.
func (h *SystemHandler) WithLogoCache(cache *logocache.Cache) *SystemHandler {
	h.logos = cache
	return h
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemStats",
		Method:      "GET",
		Path:        "/api/v1/system/stats",
		Summary:     "System statistics",
		Description: "Returns host, runtime and application statistics",
		Tags:        []string{"System"},
	}, h.GetStats)
}

// HostStats holds host-level statistics.
type HostStats struct {
	Hostname      string `json:"hostname,omitempty"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Uptime        string `json:"uptime,omitempty"`
}

// CPUStats holds CPU statistics.
type CPUStats struct {
	Cores        int     `json:"cores"`
	UsagePercent float64 `json:"usage_percent"`
	Load1        float64 `json:"load_1"`
	Load5        float64 `json:"load_5"`
	Load15       float64 `json:"load_15"`
}

// MemStats holds memory statistics.
type MemStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
	TotalHuman  string  `json:"total_human"`
	UsedHuman   string  `json:"used_human"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
}

// DiskStats holds disk usage for the data directory.
type DiskStats struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
	TotalHuman  string  `json:"total_human"`
	FreeHuman   string  `json:"free_human"`
}

// RuntimeStats holds Go runtime statistics.
type RuntimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GOMAXPROCS int    `json:"gomaxprocs"`
	AllocBytes uint64 `json:"alloc_bytes"`
	AllocHuman string `json:"alloc_human"`
	SysBytes   uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// DBStats holds database connection pool statistics.
type DBStats struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

// LogoCacheStats holds logo cache statistics.
type LogoCacheStats struct {
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
	TotalSize  string `json:"total_size"`
}

// SnapshotStats describes the active snapshot in the system report.
type SnapshotStats struct {
	Generation uint64      `json:"generation"`
	LoadedAt   time.Time   `json:"loaded_at"`
	Channels   string      `json:"channels"`
	Programs   string      `json:"programs"`
	Stats      guide.Stats `json:"stats"`
}

// SystemStatsOutput is the output for the system statistics endpoint.
type SystemStatsOutput struct {
	Body struct {
		Success   bool            `json:"success"`
		Host      HostStats       `json:"host"`
		CPU       CPUStats        `json:"cpu"`
		Memory    MemStats        `json:"memory"`
		Disk      *DiskStats      `json:"disk,omitempty"`
		Runtime   RuntimeStats    `json:"runtime"`
		Database  *DBStats        `json:"database,omitempty"`
		LogoCache *LogoCacheStats `json:"logo_cache,omitempty"`
		Snapshot  SnapshotStats   `json:"snapshot"`
	}
}

// GetStats collects and returns system statistics. Collection errors
// for individual metrics leave that metric zeroed rather than failing
// the whole report.
func (h *SystemHandler) GetStats(ctx context.Context, _ *struct{}) (*SystemStatsOutput, error) {
	resp := &SystemStatsOutput{}
	resp.Body.Success = true

	resp.Body.Host = h.hostStats(ctx)
	resp.Body.CPU = h.cpuStats(ctx)
	resp.Body.Memory = h.memStats(ctx)
	resp.Body.Disk = h.diskStats(ctx)
	resp.Body.Runtime = h.runtimeStats()
	resp.Body.Database = h.dbStats()
	resp.Body.LogoCache = h.logoCacheStats()
	resp.Body.Snapshot = h.snapshotStats()

	return resp, nil
}

func (h *SystemHandler) hostStats(ctx context.Context) HostStats {
	stats := HostStats{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if hostname, err := os.Hostname(); err == nil {
		stats.Hostname = hostname
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		stats.UptimeSeconds = int64(uptime)
		stats.Uptime = (time.Duration(uptime) * time.Second).String()
	}
	return stats
}

func (h *SystemHandler) cpuStats(ctx context.Context) CPUStats {
	stats := CPUStats{}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		stats.Cores = counts
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.UsagePercent = percents[0]
	}
	if loadAvg, err := load.AvgWithContext(ctx); err == nil && loadAvg != nil {
		stats.Load1 = loadAvg.Load1
		stats.Load5 = loadAvg.Load5
		stats.Load15 = loadAvg.Load15
	}
	return stats
}

func (h *SystemHandler) memStats(ctx context.Context) MemStats {
	stats := MemStats{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		stats.Total = vm.Total
		stats.Used = vm.Used
		stats.Available = vm.Available
		stats.UsedPercent = vm.UsedPercent
		stats.TotalHuman = format.Bytes(int64(vm.Total))
		stats.UsedHuman = format.Bytes(int64(vm.Used))
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil && swap != nil {
		stats.SwapTotal = swap.Total
		stats.SwapUsed = swap.Used
	}
	return stats
}

func (h *SystemHandler) diskStats(ctx context.Context) *DiskStats {
	if h.dataDir == "" {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, h.dataDir)
	if err != nil || usage == nil {
		return nil
	}
	return &DiskStats{
		Path:        h.dataDir,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
		TotalHuman:  format.Bytes(int64(usage.Total)),
		FreeHuman:   format.Bytes(int64(usage.Free)),
	}
}

func (h *SystemHandler) runtimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		AllocBytes: ms.Alloc,
		AllocHuman: format.Bytes(int64(ms.Alloc)),
		SysBytes:   ms.Sys,
		NumGC:      ms.NumGC,
	}
}

func (h *SystemHandler) dbStats() *DBStats {
	if h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return &DBStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}
}

func (h *SystemHandler) logoCacheStats() *LogoCacheStats {
	if h.logos == nil {
		return nil
	}
	stats := h.logos.Stats()
	return &LogoCacheStats{
		Entries:    stats.Entries,
		TotalBytes: stats.TotalBytes,
		TotalSize:  format.Bytes(stats.TotalBytes),
	}
}

func (h *SystemHandler) snapshotStats() SnapshotStats {
	snap := h.session.Current()
	stats := snap.Stats()
	return SnapshotStats{
		Generation: snap.Generation(),
		LoadedAt:   snap.LoadedAt(),
		Channels:   format.Number(int64(stats.Channels)),
		Programs:   format.Number(int64(stats.Programs)),
		Stats:      stats,
	}
}
