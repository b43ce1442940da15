// Package globals has the values and helpers shared by the sub-commands and the
// HTTP front end: logging setup, TLS parsing and a few constants.
package globals

// Version is the application version. It is set at build time with -ldflags.
var Version = "dev"

// CacheVersion namespaces the disk store. Bumping it invalidates every cached
// image on the next start without any per-entry migration.
const CacheVersion = 1

// ImageRoute is the path of the image endpoint
const ImageRoute = "/image"

// CacheRoute is the path of the cache admin endpoint
const CacheRoute = "/cmd/cache"

// StopRoute is the path of the endpoint that stops the server
const StopRoute = "/cmd/stop"
