package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"imagefetch/impl/globals"
	"imagefetch/impl/preload"

	log "github.com/sirupsen/logrus"
)

// testRun has all the test params
type testRun struct {
	server    string
	items     []preload.Item
	clients   int
	iteration time.Duration
	tally     time.Duration
	shuffle   bool
	clear     bool
	out       io.Writer
}

// counters are shared by a client goroutine and the tally goroutine
type counters struct {
	ok     atomic.Uint64
	failed atomic.Uint64
}

// runTests starts one client, waits for the iteration duration, starts another, and so
// on up to the configured number of clients. Then it stops them one by one the same way.
func runTests(ctx context.Context, tr testRun) error {
	client := &http.Client{Timeout: time.Minute}
	cnts := make([]counters, tr.clients)
	stops := make([]context.CancelFunc, tr.clients)
	var wg sync.WaitGroup

	tallyCtx, stopTally := context.WithCancel(ctx)
	tallyDone := make(chan struct{})
	go func() {
		defer close(tallyDone)
		tallyStats(tallyCtx, tr.tally, cnts, tr.out)
	}()

	// scale up
	for i := 0; i < tr.clients; i++ {
		log.Infof("start client #%d", i)
		cctx, cancel := context.WithCancel(ctx)
		stops[i] = cancel
		wg.Add(1)
		go func() {
			defer wg.Done()
			doTest(cctx, client, tr, &cnts[i])
		}()
		if !sleep(ctx, tr.iteration) {
			break
		}
	}
	// scale down
	for i := tr.clients - 1; i >= 0; i-- {
		if stops[i] == nil {
			continue
		}
		log.Infof("stop client #%d", i)
		stops[i]()
		if i != 0 && !sleep(ctx, tr.iteration) {
			break
		}
	}
	for _, stop := range stops {
		if stop != nil {
			stop()
		}
	}
	wg.Wait()
	stopTally()
	<-tallyDone
	return ctx.Err()
}

// doTest requests every image in the list from the server, over and over, until the passed
// context is done.
func doTest(ctx context.Context, client *http.Client, tr testRun, cnt *counters) {
	items := make([]preload.Item, len(tr.items))
	copy(items, tr.items)
	for {
		if tr.shuffle {
			ShuffleInPlace(items)
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			if err := get(ctx, client, imageURL(tr.server, item)); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Debugf("request failed: %s", err)
				cnt.failed.Add(1)
			} else {
				cnt.ok.Add(1)
			}
		}
		if tr.clear {
			if err := clearCache(ctx, client, tr.server); err != nil && ctx.Err() == nil {
				log.Warnf("unable to clear the server cache: %s", err)
			}
		}
	}
}

// imageURL builds the image endpoint URL for the passed item
func imageURL(server string, item preload.Item) string {
	q := url.Values{}
	q.Set("url", item.URL)
	if item.Size.Width > 0 {
		q.Set("width", strconv.Itoa(item.Size.Width))
	}
	if item.Size.Height > 0 {
		q.Set("height", strconv.Itoa(item.Size.Height))
	}
	return server + globals.ImageRoute + "?" + q.Encode()
}

func get(ctx context.Context, client *http.Client, u string) error {
	return do(ctx, client, http.MethodGet, u)
}

func clearCache(ctx context.Context, client *http.Client, server string) error {
	return do(ctx, client, http.MethodDelete, server+globals.CacheRoute)
}

func do(ctx context.Context, client *http.Client, method, u string) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, u, resp.StatusCode)
	}
	return nil
}

// tallyStats writes the aggregate rate of successful and failed requests over each interval
// until the context is done.
func tallyStats(ctx context.Context, interval time.Duration, cnts []counters, out io.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastOk, lastFailed := sum(cnts)
	lastTime := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			ok, failed := sum(cnts)
			elapsed := t.Sub(lastTime).Seconds()
			fmt.Fprintf(out, "%s\t%f\t%f\n", t.Format("2006-01-02 15:04:05"),
				float64(ok-lastOk)/elapsed, float64(failed-lastFailed)/elapsed)
			lastOk, lastFailed = ok, failed
			lastTime = t
		}
	}
}

// sum gets the current totals across all clients
func sum(cnts []counters) (uint64, uint64) {
	var ok, failed uint64
	for i := range cnts {
		ok += cnts[i].ok.Load()
		failed += cnts[i].failed.Load()
	}
	return ok, failed
}

// sleep waits for d, returning false if the context ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
