package cmdline

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"imagefetch/impl/config"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/memcache"

	"github.com/labstack/gommon/bytes"
	"github.com/urfave/cli/v3"
)

// fromCmdline will be populated with flags indicating which configuration settings were
// specified on the command line.
var fromCmdline config.FromCmdLine

// cfg has the parsed configuration - including defaults (e.g. port) if the user does not override
var cfg = config.Configuration{}

// fileExists validates flags that name a file
func fileExists(path string) error {
	if fi, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found")
	} else if fi.IsDir() {
		return fmt.Errorf("not a file")
	}
	return nil
}

// byteSize validates flags like "64MiB" or "1000000"
func byteSize(val string) error {
	if n, err := bytes.Parse(val); err != nil {
		return fmt.Errorf("invalid size: %s", val)
	} else if n <= 0 {
		return fmt.Errorf("size must be greater than zero")
	}
	return nil
}

func duration(val string) error {
	if d, err := time.ParseDuration(val); err != nil || d <= 0 {
		return fmt.Errorf("invalid duration: %s", val)
	}
	return nil
}

// fetchFlags are shared by the sub-commands that fetch images
func fetchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "fetch-timeout",
			Value:       "30s",
			Usage:       "The max time to connect to and read from an image server, e.g. '10s'",
			Destination: &cfg.FetchTimeout,
			Validator:   duration,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.FetchTimeout = true
				return nil
			},
		},
		&cli.Int64Flag{
			Name:        "workers",
			Value:       4,
			Usage:       "The max number of concurrent disk lookups and decodes",
			Destination: &cfg.Workers,
			Validator: func(n int64) error {
				if n <= 0 {
					return fmt.Errorf("must be greater than zero")
				}
				return nil
			},
			Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
				fromCmdline.Workers = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "user-agent",
			Value:       "imagefetch",
			Usage:       "The User-Agent header sent to image servers",
			Destination: &cfg.UserAgent,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.UserAgent = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:      "memory-cache",
			Value:     "64MiB",
			Usage:     "The capacity of the in-memory cache of decoded images, e.g. '128MiB'",
			Validator: byteSize,
			Action: func(ctx context.Context, cmd *cli.Command, val string) error {
				fromCmdline.MemoryCacheBytes = true
				cfg.MemoryCacheBytes, _ = bytes.Parse(val)
				return nil
			},
		},
	}
}

// newCmds builds the command tree for the command line parser urfave/cli. The flags carry
// parse state so each Parse gets a new tree.
func newCmds() *cli.Command {
	return &cli.Command{
		Name:  "imagefetch",
		Usage: "a deduplicating, two-tier caching image fetcher",
		// define this or the parser terminates the program
		ExitErrHandler: func(_ context.Context, _ *cli.Command, _ error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "error",
				Usage:       "Sets the minimum value for logging: debug, warn, info, or error",
				Destination: &cfg.LogLevel,
				Validator: func(lvl string) error {
					validValues := []string{"debug", "warn", "info", "error"}
					if !slices.Contains(validValues, strings.ToLower(lvl)) {
						return fmt.Errorf("must be one of %s", strings.Join(validValues, ", "))
					}
					return nil
				},
				Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
					fromCmdline.LogLevel = true
					return nil
				},
			},
			&cli.StringFlag{
				Name:        "config-file",
				Usage:       "A file to load configuration values from (cmdline overrides file settings)",
				Destination: &cfg.ConfigFile,
				Validator:   fileExists,
				Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
					fromCmdline.ConfigFile = true
					return nil
				},
			},
			&cli.StringFlag{
				Name:        "cache-path",
				Value:       "/var/lib/imagefetch",
				Usage:       "The path for the disk cache",
				Destination: &cfg.CachePath,
				Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
					fromCmdline.CachePath = true
					return nil
				},
			},
			&cli.StringFlag{
				Name:      "disk-cache",
				Value:     "100MiB",
				Usage:     "The capacity of the disk cache, e.g. '1GiB'",
				Validator: byteSize,
				Action: func(ctx context.Context, cmd *cli.Command, val string) error {
					fromCmdline.DiskCacheBytes = true
					cfg.DiskCacheBytes, _ = bytes.Parse(val)
					return nil
				},
			},
			&cli.StringFlag{
				Name:        "log-file",
				Value:       "",
				Usage:       "log to the specified file rather than the console",
				Destination: &cfg.LogFile,
				Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
					fromCmdline.LogFile = true
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Runs the server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fromCmdline.Command = "serve"
					return nil
				},
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:        "preload-file",
						Usage:       "Preloads images from a file containing a list of image URLs",
						Destination: &cfg.PreloadFile,
						Validator:   fileExists,
						Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
							fromCmdline.PreloadFile = true
							return nil
						},
					},
					&cli.Int64Flag{
						Name:        "port",
						Value:       8080,
						Usage:       "The port to serve on",
						Destination: &cfg.Port,
						Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
							fromCmdline.Port = true
							return nil
						},
					},
					&cli.Int64Flag{
						Name:        "metrics",
						Usage:       "Serves prometheus metrics on the passed port if non-zero",
						Destination: &cfg.Metrics,
						Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
							fromCmdline.Metrics = true
							return nil
						},
					},
					&cli.Int64Flag{
						Name:        "health",
						Usage:       "Serves a health check on the passed port if non-zero",
						Destination: &cfg.Health,
						Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
							fromCmdline.Health = true
							return nil
						},
					},
				}, fetchFlags()...),
			},
			{
				Name:  "load",
				Usage: "Loads the disk cache from a file containing a list of image URLs",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fromCmdline.Command = "load"
					return nil
				},
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:        "url-file",
						Usage:       "The file containing the list of image URLs",
						Required:    true,
						Destination: &cfg.PreloadFile,
						Validator:   fileExists,
						Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
							fromCmdline.PreloadFile = true
							return nil
						},
					},
				}, fetchFlags()...),
			},
			{
				Name:  "list",
				Usage: "Lists the disk cache",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fromCmdline.Command = "list"
					return nil
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "header",
						Value:       false,
						Usage:       "Displays a header line",
						Destination: &cfg.ListConfig.Header,
						Action: func(ctx context.Context, cmd *cli.Command, _ bool) error {
							fromCmdline.ListConfig = true
							return nil
						},
					},
					&cli.StringFlag{
						Name:        "sort",
						Usage:       "Sorts the listing by 'size', 'time' (most recently used first) or 'key'",
						Destination: &cfg.ListConfig.Sort,
						Validator: func(val string) error {
							if !slices.Contains([]string{"size", "time", "key"}, val) {
								return fmt.Errorf("must be one of size, time, key")
							}
							return nil
						},
						Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
							fromCmdline.ListConfig = true
							return nil
						},
					},
				},
			},
			{
				Name:  "clear",
				Usage: "Removes everything from the disk cache (server should not be running)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fromCmdline.Command = "clear"
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "Displays the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fromCmdline.Command = "version"
					return nil
				},
			},
		},
	}
}

// Parse parses the command line. It returns the following:
//
//  1. A FromCmdLine struct which has the command to run ("serve", "list", etc.). If the command
//     is the empty string then no sub-command was specified in which case the parser auto-displays
//     help. This struct also has flags telling you which configuration values were provided by the
//     user on the command line.
//  2. A Configuration struct containing the parsed configuration values. For any configuration flag
//     in the FromCmdLine struct with a false value, the corresponding configuration value in *this*
//     struct will be the default.
//  3. An error, if the parser returned one, else nil.
func Parse() (config.FromCmdLine, config.Configuration, error) {
	applyDefaults()
	if err := newCmds().Run(context.Background(), os.Args); err != nil {
		return config.FromCmdLine{}, config.Configuration{}, err
	}
	return fromCmdline, cfg, nil
}

// applyDefaults fills in the defaults of the flags that don't have a Destination
func applyDefaults() {
	if !fromCmdline.MemoryCacheBytes {
		cfg.MemoryCacheBytes = memcache.DefaultCapacity
	}
	if !fromCmdline.DiskCacheBytes {
		cfg.DiskCacheBytes = diskstore.DefaultCapacity
	}
}

// ClearParse supports unit testing
func ClearParse() {
	fromCmdline = config.FromCmdLine{}
	cfg = config.Configuration{}
}
