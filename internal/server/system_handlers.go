package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	"github.com/midtierhuman/PortVault-sub000/internal/reliability"
	"github.com/midtierhuman/PortVault-sub000/internal/scheduler"
)

// SystemHandlers handles health and monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	db          *database.DB
	scheduler   *scheduler.Scheduler
	backup      *reliability.BackupService
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	scheduler *scheduler.Scheduler,
	backup *reliability.BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		db:          db,
		scheduler:   scheduler,
		backup:      backup,
		startupTime: time.Now(),
	}
}

// DatabaseStatus summarises the portvault database
type DatabaseStatus struct {
	Name          string `json:"name"`
	Healthy       bool   `json:"healthy"`
	SizeBytes     int64  `json:"size_bytes"`
	WALSizeBytes  int64  `json:"wal_size_bytes"`
	PageCount     int64  `json:"page_count"`
	FreelistCount int64  `json:"freelist_count"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status         string         `json:"status"`
	Uptime         string         `json:"uptime"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	Goroutines     int            `json:"goroutines"`
	CPUPercent     float64        `json:"cpu_percent"`
	MemoryPercent  float64        `json:"memory_percent"`
	HeapAllocMB    float64        `json:"heap_alloc_mb"`
	Database       DatabaseStatus `json:"database"`
	Jobs           []string       `json:"jobs"`
	BackupsEnabled bool           `json:"backups_enabled"`
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.QuickCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		httpapi.WriteJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "portvault",
		})
		return
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portvault",
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	uptime := time.Since(h.startupTime)
	cpuPercent, memPercent := h.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatusResponse{
		Status:         "healthy",
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  int64(uptime.Seconds()),
		Goroutines:     runtime.NumGoroutine(),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		HeapAllocMB:    float64(memStats.HeapAlloc) / 1024 / 1024,
		Database:       h.databaseStatus(r.Context()),
		BackupsEnabled: h.backup != nil && h.backup.Enabled(),
		Jobs:           []string{},
	}
	if !response.Database.Healthy {
		response.Status = "degraded"
	}

	if h.scheduler != nil {
		response.Jobs = h.scheduler.JobNames()
		sort.Strings(response.Jobs)
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, response)
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) DatabaseStatus {
	status := DatabaseStatus{Name: h.db.Name()}

	if err := h.db.QuickCheck(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Database quick check failed")
		return status
	}
	status.Healthy = true

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		return status
	}

	status.SizeBytes = stats.SizeBytes
	status.WALSizeBytes = stats.WALSizeBytes
	status.PageCount = stats.PageCount
	status.FreelistCount = stats.FreelistCount
	return status
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
