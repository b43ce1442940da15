// Package preload warms the image cache from a file listing image URLs, one per
// line. Blank lines and lines starting with '#' are skipped. A line may carry a size
// after the URL, separated by whitespace, e.g.:
//
//	https://example.com/a.png 200x100
//
// in which case the image is decoded at that size for the memory cache. The disk
// store always receives the original bytes.
package preload

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"imagefetch/impl/manager"
	"imagefetch/types"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel fetches when zero is passed to Load
const DefaultConcurrency = 4

// Item is one line of a preload file
type Item struct {
	URL  string
	Size types.Size
}

// Load fetches every image listed in the passed file through the manager. A single image
// that cannot be fetched is logged and skipped. An error is returned only if the file can't
// be read or parsed, or the context ends. The number of images fetched is returned.
func Load(ctx context.Context, mgr *manager.Manager, listFile string, concurrency int) (int, error) {
	items, err := ReadList(listFile)
	if err != nil {
		return 0, err
	}
	return LoadItems(ctx, mgr, items, concurrency)
}

// LoadItems fetches the passed items through the manager, at most concurrency at a time
func LoadItems(ctx context.Context, mgr *manager.Manager, items []Item, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	start := time.Now()
	log.Infof("loading %d image(s)", len(items))
	var loaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			if _, err := mgr.Fetch(gctx, item.URL, item.Size); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Errorf("unable to load %s: %s", item.URL, err)
				return nil
			}
			loaded.Add(1)
			log.Debugf("loaded %s", item.URL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(loaded.Load()), err
	}
	log.Infof("loaded %d of %d image(s) in %s", loaded.Load(), len(items), time.Since(start))
	return int(loaded.Load()), nil
}

// ReadList parses a preload file
func ReadList(listFile string) ([]Item, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	items := []Item{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		item := Item{URL: fields[0]}
		switch len(fields) {
		case 1:
		case 2:
			size, err := parseSize(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", listFile, lineNo, err)
			}
			item.Size = size
		default:
			return nil, fmt.Errorf("%s line %d: unable to parse: %q", listFile, lineNo, line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// parseSize parses WxH
func parseSize(s string) (types.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return types.NoSize, fmt.Errorf("invalid size: %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width < 0 {
		return types.NoSize, fmt.Errorf("invalid width in size: %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height < 0 {
		return types.NoSize, fmt.Errorf("invalid height in size: %q", s)
	}
	return types.Size{Width: width, Height: height}, nil
}
