package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nerrad567/strata/internal/cache"
	"github.com/nerrad567/strata/internal/monitor"
	"github.com/nerrad567/strata/internal/pool"
)

// defaultSlowQueryLimit caps the slow-query listing when no limit is given.
const defaultSlowQueryLimit = 20

// HealthResponse reports overall health plus component snapshots.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Healthy bool   `json:"healthy"`
}

// StatsResponse bundles the statistics of every component.
type StatsResponse struct {
	Pool       pool.Stats                 `json:"pool"`
	Cache      cache.Stats                `json:"cache"`
	Operations map[string]monitor.OpStats `json:"operations"`
}

// InvalidateRequest selects cached entries to remove.
// Exactly one of pattern or entity should be set.
type InvalidateRequest struct {
	// Pattern removes entries whose key contains the substring.
	Pattern string `json:"pattern"`

	// Entity removes entries belonging to one named query.
	Entity string `json:"entity"`
}

// InvalidateResponse reports how many entries were removed.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// handleHealth probes the pool and reports overall health. Returns 503
// when the probe fails so load balancers and uptime checks can key off
// the status code alone.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.store.Health(r.Context())

	resp := HealthResponse{Status: "ok", Version: s.version, Healthy: h.Healthy}
	status := http.StatusOK
	if !h.Healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleStats returns pool, cache and per-operation statistics.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Pool:       s.store.Pool().Stats(),
		Cache:      s.store.Cache().Stats(),
		Operations: s.store.Monitor().AllStats(),
	})
}

// handleSlowQueries returns the slowest recorded operations, newest
// ranking first. The limit query parameter bounds the listing.
func (s *Server) handleSlowQueries(w http.ResponseWriter, r *http.Request) {
	limit := defaultSlowQueryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	samples := s.store.Monitor().SlowQueries(limit)
	writeJSON(w, http.StatusOK, map[string]any{"slow_queries": samples})
}

// handleMigrationStatus reports the current and latest schema versions
// plus the applied history.
func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.MigrationStatus(r.Context())
	if err != nil {
		s.logger.Error("migration status failed", "error", err)
		writeInternalError(w, "failed to read migration status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleMigrationVerify cross-checks applied migration checksums against
// the current scripts.
func (s *Server) handleMigrationVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.VerifyMigrations(r.Context())
	if err != nil {
		s.logger.Error("migration verify failed", "error", err)
		writeInternalError(w, "failed to verify migrations")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCacheInvalidate removes cached entries by pattern or entity name.
// Matching zero entries is a successful no-op.
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Pattern == "" && req.Entity == "" {
		writeBadRequest(w, "pattern or entity is required")
		return
	}
	if req.Pattern != "" && req.Entity != "" {
		writeBadRequest(w, "pattern and entity are mutually exclusive")
		return
	}

	var removed int
	if req.Pattern != "" {
		removed = s.store.Invalidate(req.Pattern)
	} else {
		removed = s.store.Cache().InvalidateByName(req.Entity)
	}

	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: removed})
}
