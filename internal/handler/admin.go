package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/cache"
	"github.com/juggajay/siteproof-v2-sub005/pkg/response"
)

// StatsSource reports backend statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	inspections StatsSource
	ncrs        StatsSource
	cache       cache.Cache
	startTime   time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(inspections, ncrs StatsSource, c cache.Cache) *AdminHandler {
	return &AdminHandler{
		inspections: inspections,
		ncrs:        ncrs,
		cache:       c,
		startTime:   time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	stats["inspection_db"] = sourceStats(ctx, h.inspections)
	stats["ncr_db"] = sourceStats(ctx, h.ncrs)

	if h.cache != nil {
		stats["cache"] = map[string]interface{}{"backend": h.cache.Name(), "status": "configured"}
	} else {
		stats["cache"] = map[string]interface{}{"status": "not_configured"}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

func sourceStats(ctx context.Context, src StatsSource) map[string]interface{} {
	if src == nil {
		return map[string]interface{}{"status": "not_configured"}
	}
	s, err := src.GetStats(ctx)
	if err != nil {
		return map[string]interface{}{"status": "error", "error": err.Error()}
	}
	out := make(map[string]interface{}, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["status"] = "connected"
	return out
}
