/*
imagefetch fetches images over HTTP(S), decodes them to a requested size and caches
them in two tiers: decoded images in memory and the original bytes on disk. Concurrent
requests for the same URL share one download.

Usage:

	imagefetch [global flags] command [command flags]

Commands:

	serve    Runs the HTTP server: GET /image?url=...&width=...&height=...
	load     Fetches a list of image URLs into the disk cache and exits
	list     Lists the disk cache
	clear    Empties the disk cache
	version  Displays the version

Global flags:

	--log-level    debug, info, warn or error. Defaults to error.
	--log-file     Logs to a file rather than the console.
	--config-file  A YAML configuration file. Command line flags take precedence.
	--cache-path   The disk cache directory. Defaults to /var/lib/imagefetch.
	--disk-cache   The disk cache capacity, e.g. 1GiB.

Run 'imagefetch command --help' for the command flags.
*/
package main
