// Package impl implements the HTTP front end of the image fetcher. Each request to the
// image endpoint is one requester of the request manager: it lives as long as the HTTP
// request does, and a client that goes away cancels its request. This file is lean,
// each method simply calls a handler in 'handlers.go' or 'cmd_handlers.go'.
package impl

import (
	"imagefetch/impl/globals"
	"imagefetch/impl/manager"
	"imagefetch/impl/memcache"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type ImageFetch struct {
	mgr        *manager.Manager
	memory     *memcache.Cache
	shutdownCh chan bool
}

// NewImageFetch creates and returns an ImageFetch struct from the passed args. A value
// is sent on shutdownCh when the stop command is received.
func NewImageFetch(mgr *manager.Manager, memory *memcache.Cache, shutdownCh chan bool) *ImageFetch {
	return &ImageFetch{
		mgr:        mgr,
		memory:     memory,
		shutdownCh: shutdownCh,
	}
}

// RegisterHandlers wires the routes and the middleware into the passed echo server
func RegisterHandlers(e *echo.Echo, r *ImageFetch) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(globals.GetEchoLoggingFunc())
	e.GET(globals.ImageRoute, r.GetImage)
	e.DELETE(globals.CacheRoute, r.CmdClearCache)
	e.GET(globals.StopRoute, r.CmdStop)
	e.GET("/cmd/stats", r.CmdStats)
}

// GET /image?url=...&width=...&height=...
func (r *ImageFetch) GetImage(ctx echo.Context) error {
	return r.handleGetImage(ctx)
}

// DELETE /cmd/cache
func (r *ImageFetch) CmdClearCache(ctx echo.Context) error {
	return r.handleClearCache(ctx)
}

// GET /cmd/stop
func (r *ImageFetch) CmdStop(ctx echo.Context) error {
	return r.handleStop(ctx)
}

// GET /cmd/stats
func (r *ImageFetch) CmdStats(ctx echo.Context) error {
	return r.handleStats(ctx)
}
