package impl

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// statsResponse is the body of GET /cmd/stats
type statsResponse struct {
	Pending       int   `json:"pending"`
	InFlight      int   `json:"inFlight"`
	Failed        int   `json:"failed"`
	MemoryEntries int   `json:"memoryEntries"`
	MemoryBytes   int64 `json:"memoryBytes"`
}

// DELETE /cmd/cache
func (r *ImageFetch) handleClearCache(ctx echo.Context) error {
	if err := r.mgr.ClearCache(); err != nil {
		log.Errorf("error clearing the cache: %s", err)
		return ctx.String(http.StatusInternalServerError, "error clearing the cache\n")
	}
	return ctx.String(http.StatusOK, "cache cleared\n")
}

// GET /cmd/stop
func (r *ImageFetch) handleStop(ctx echo.Context) error {
	r.shutdownCh <- true
	return ctx.NoContent(http.StatusOK)
}

// GET /cmd/stats
func (r *ImageFetch) handleStats(ctx echo.Context) error {
	s := r.mgr.Stats()
	return ctx.JSON(http.StatusOK, statsResponse{
		Pending:       s.Pending,
		InFlight:      s.InFlight,
		Failed:        s.Failed,
		MemoryEntries: r.memory.Len(),
		MemoryBytes:   r.memory.Size(),
	})
}
