// The load driver ramps up concurrent GET /image clients against a running imagefetch
// server, holds each concurrency level for a while, then ramps down, printing the
// aggregate request rate as it goes. E.g.:
//
//	go run ./testing/load/driver --server http://localhost:8080 --url-file urls --clients 8
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imagefetch/impl/preload"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "driver",
		Usage: "load tests an imagefetch server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "The imagefetch server base URL"},
			&cli.StringFlag{Name: "url-file", Required: true, Usage: "A file of image URLs, in the preload format"},
			&cli.IntFlag{Name: "clients", Value: 4, Usage: "The concurrency to ramp up to"},
			&cli.DurationFlag{Name: "iteration", Value: time.Minute, Usage: "How long to hold each concurrency level"},
			&cli.DurationFlag{Name: "tally", Value: 10 * time.Second, Usage: "The interval between rate computations"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Writes the rates to this file rather than the console"},
			&cli.BoolFlag{Name: "shuffle", Usage: "Shuffles the URL list for each client"},
			&cli.BoolFlag{Name: "clear", Usage: "Clears the server cache each time a client finishes a pass"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			items, err := preload.ReadList(cmd.String("url-file"))
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no URLs in %s", cmd.String("url-file"))
			}
			if cmd.Int("clients") <= 0 {
				return fmt.Errorf("--clients must be greater than zero")
			}
			out := os.Stdout
			if f := cmd.String("metrics-file"); f != "" {
				if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
					return err
				}
				if out, err = os.Create(f); err != nil {
					return err
				}
				defer out.Close()
			}
			return runTests(ctx, testRun{
				server:    cmd.String("server"),
				items:     items,
				clients:   int(cmd.Int("clients")),
				iteration: cmd.Duration("iteration"),
				tally:     cmd.Duration("tally"),
				shuffle:   cmd.Bool("shuffle"),
				clear:     cmd.Bool("clear"),
				out:       out,
			})
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
