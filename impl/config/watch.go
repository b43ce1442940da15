package config

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var waitFor = 100 * time.Millisecond

// Watch watches the passed configuration file and calls onChange with the newly parsed
// configuration whenever the file is written. The directory is watched rather than the
// file so editors that replace the file with a rename are handled.
//
// fsnotify can emanate many messages for a single save, so events are deduplicated with
// a timer that is reset on every event and fires once things are quiet. See:
//
// https://github.com/fsnotify/fsnotify/blob/main/cmd/fsnotify/dedup.go
//
// Watch blocks until the context is canceled.
func Watch(ctx context.Context, configFile string, onChange func(Configuration)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(configFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Debugf("watching configuration file %s", target)

	var mu sync.Mutex
	t := time.AfterFunc(math.MaxInt64, func() {
		cfg, err := Parse(target)
		if err != nil {
			log.Errorf("ignoring configuration change: %s", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onChange(cfg)
	})
	t.Stop()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("terminating configuration watcher")
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("configuration watcher error: %s", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			t.Reset(waitFor)
		}
	}
}
