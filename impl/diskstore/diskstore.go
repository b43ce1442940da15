package diskstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"imagefetch/impl/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCapacity = 100 * 1024 * 1024
	shardPrefixLen  = 2
	dirPerm         = 0o755
	filePerm        = 0o644
	tmpPrefix       = ".tmp-"
	versionPrefix   = "v"
)

// ErrNotFound is returned by Get when the key is not in the store.
var ErrNotFound = errors.New("not found in disk store")

// Writer receives the bytes of one value. Exactly one of Commit or Abort
// should be called when the bytes have been written.
type Writer interface {
	io.Writer
	Commit() error
	Abort() error
}

// Entry describes one stored value.
type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is a capacity-bounded, versioned blob store on the local file system.
type Store struct {
	sync.Mutex
	root     string
	version  int
	capacity int64
	size     int64
}

// Open opens (or creates) the store rooted at cachePath for the passed version. Directories
// belonging to other versions are removed, as are temp files left over from an interrupted
// write. If the store already holds more than capacity bytes it is pruned.
func Open(cachePath string, version int, capacity int64) (*Store, error) {
	if cachePath == "" {
		return nil, errors.New("cache path is empty")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		root:     cachePath,
		version:  version,
		capacity: capacity,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// init must be called with the lock held, or before the store is shared.
func (s *Store) init() error {
	if err := os.MkdirAll(s.dir(), dirPerm); err != nil {
		return fmt.Errorf("unable to create disk store directory %s: %w", s.dir(), err)
	}
	if err := s.removeOtherVersions(); err != nil {
		return err
	}
	var total int64
	err := filepath.WalkDir(s.dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), tmpPrefix) {
			log.Debugf("removing abandoned temp file %s", path)
			return os.Remove(path)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to scan disk store %s: %w", s.dir(), err)
	}
	metrics.DeltaDiskBytes(float64(total - s.size))
	s.size = total
	log.Debugf("opened disk store %s holding %d bytes", s.dir(), s.size)
	return s.prune()
}

func (s *Store) removeOtherVersions() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	current := filepath.Base(s.dir())
	for _, e := range entries {
		if !e.IsDir() || e.Name() == current || !strings.HasPrefix(e.Name(), versionPrefix) {
			continue
		}
		log.Infof("removing disk store for stale version %s", e.Name())
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// dir is the versioned directory holding all the shards.
func (s *Store) dir() string {
	return filepath.Join(s.root, fmt.Sprintf("%s%d", versionPrefix, s.version))
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid disk store key %q", key)
	}
	prefixLen := min(shardPrefixLen, len(key))
	return filepath.Join(s.dir(), key[:prefixLen], key), nil
}

// Get returns the bytes stored for the key, or ErrNotFound. A successful Get marks the
// entry as most recently used.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		log.Debugf("unable to touch %s: %s", path, err)
	}
	return data, nil
}

// Writer begins a write of the value for the passed key. Nothing is visible to Get
// until Commit.
func (s *Store) Writer(key string) (Writer, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(dir, tmpPrefix+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, err
	}
	return &fileWriter{
		store:     s,
		file:      f,
		tmpPath:   tmpPath,
		finalPath: path,
	}, nil
}

// Put writes and commits the value for the passed key.
func (s *Store) Put(key string, data []byte) error {
	w, err := s.Writer(key)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Commit()
}

// Delete removes the value for the passed key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	s.addSize(-info.Size())
	return nil
}

// DeleteAll removes every stored value, including the versioned directory itself, and
// then re-creates the empty store.
func (s *Store) DeleteAll() error {
	s.Lock()
	defer s.Unlock()
	if err := os.RemoveAll(s.dir()); err != nil {
		return fmt.Errorf("unable to remove disk store %s: %w", s.dir(), err)
	}
	s.addSize(-s.size)
	return s.init()
}

// Walk calls fn for every committed entry, in no particular order. If fn returns an error
// the walk stops and the error is returned.
func (s *Store) Walk(fn func(Entry) error) error {
	return filepath.WalkDir(s.dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(Entry{Key: d.Name(), Size: info.Size(), ModTime: info.ModTime()})
	})
}

// Size returns the total bytes committed to the store.
func (s *Store) Size() int64 {
	s.Lock()
	defer s.Unlock()
	return s.size
}

// Capacity returns the configured byte bound.
func (s *Store) Capacity() int64 {
	return s.capacity
}

// Dir returns the versioned directory that holds the store's files.
func (s *Store) Dir() string {
	return s.dir()
}

// addSize must be called with the lock held.
func (s *Store) addSize(delta int64) {
	s.size += delta
	metrics.DeltaDiskBytes(float64(delta))
}

// commit renames the temp file over the final path. Must be called with the lock
// held so the size accounting and pruning see a consistent view.
func (s *Store) commit(tmpPath, finalPath string, n int64) error {
	var replaced int64
	if info, err := os.Stat(finalPath); err == nil {
		replaced = info.Size()
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	s.addSize(n - replaced)
	return s.prune()
}
