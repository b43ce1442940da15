package diskstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type pruneEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// prune removes the least recently used files until the store fits its capacity. Must be
// called with the lock held.
func (s *Store) prune() error {
	if s.size <= s.capacity {
		return nil
	}
	entries := make([]pruneEntry, 0)
	err := filepath.WalkDir(s.dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, pruneEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})
	var freed int64
	for _, e := range entries {
		if s.size <= s.capacity {
			break
		}
		if err := os.Remove(e.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		s.addSize(-e.size)
		freed += e.size
	}
	log.Debugf("pruned %d bytes from disk store, %d bytes remain", freed, s.size)
	return nil
}
