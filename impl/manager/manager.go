package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"imagefetch/impl/decoder"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/downloader"
	"imagefetch/impl/memcache"
	"imagefetch/types"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds concurrent disk lookups and decodes when Options.Workers is zero
const DefaultWorkers = 4

// ErrClosed is returned by operations on a closed Manager
var ErrClosed = errors.New("request manager is closed")

// Fetcher is one network fetch of one URL. See downloader.Downloader.
type Fetcher interface {
	Start(done func(downloader.Result))
	Cancel()
}

// FetcherFactory returns a new, unstarted Fetcher for the passed URL
type FetcherFactory func(url string) Fetcher

// Store is the durable cache tier. See diskstore.Store.
type Store interface {
	Get(key string) ([]byte, error)
	Writer(key string) (diskstore.Writer, error)
	Delete(key string) error
	DeleteAll() error
}

// Options has the collaborators of a Manager. Memory, Store and Fetch are required.
// Decode defaults to decoder.Decode.
type Options struct {
	Memory  *memcache.Cache
	Store   Store
	Fetch   FetcherFactory
	Decode  decoder.Func
	Workers int64
}

// Manager deduplicates and fans out image requests. Create one with New and
// release it with Close.
type Manager struct {
	memory *memcache.Cache
	store  Store
	fetch  FetcherFactory
	decode decoder.Func
	sem    *semaphore.Weighted

	ctx       context.Context
	cancelCtx context.CancelFunc

	// mu guards everything below. Listeners and Fetchers are never called with mu held.
	mu          sync.Mutex
	closed      bool
	pending     map[types.RequesterID]map[*lookup]struct{}
	inflight    map[string]*inflight
	memberships map[types.RequesterID]map[*inflight]struct{}
	failed      map[string]struct{}
}

// lookup is a request waiting on the disk tier
type lookup struct {
	id       types.RequesterID
	url      string
	key      string
	size     types.Size
	listener types.Listener
	canceled atomic.Bool
}

// waiter is a requester attached to an in-flight download
type waiter struct {
	id       types.RequesterID
	size     types.Size
	listener types.Listener
}

// inflight is the one network fetch of a URL and the requesters waiting on it. The
// image is decoded at the size asked for by the requester that created it.
type inflight struct {
	url      string
	key      string
	size     types.Size
	fetcher  Fetcher
	waiters  []*waiter
	canceled atomic.Bool
}

// Stats is a snapshot of the manager's bookkeeping
type Stats struct {
	Pending  int
	InFlight int
	Failed   int
}

// New creates a Manager
func New(opts Options) (*Manager, error) {
	if opts.Memory == nil || opts.Store == nil || opts.Fetch == nil {
		return nil, errors.New("memory cache, disk store and fetcher factory are required")
	}
	if opts.Decode == nil {
		opts.Decode = decoder.Decode
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		memory:      opts.Memory,
		store:       opts.Store,
		fetch:       opts.Fetch,
		decode:      opts.Decode,
		sem:         semaphore.NewWeighted(opts.Workers),
		ctx:         ctx,
		cancelCtx:   cancel,
		pending:     make(map[types.RequesterID]map[*lookup]struct{}),
		inflight:    make(map[string]*inflight),
		memberships: make(map[types.RequesterID]map[*inflight]struct{}),
		failed:      make(map[string]struct{}),
	}
	return m, nil
}

// Request asks for the image at url on behalf of the requester identified by id. The
// result is delivered to listener exactly once, unless the request is canceled first:
//
//   - if the image is in the memory cache, listener.OnSuccess is called before Request
//     returns, on the caller's goroutine
//   - otherwise the disk store and then the network are tried asynchronously
//   - if url is empty, or a previous fetch of url failed, the request is dropped and
//     listener is never called
//
// Request never waits on I/O. It may be called from inside a listener.
func (m *Manager) Request(url string, id types.RequesterID, size types.Size, listener types.Listener) {
	if url == "" {
		return
	}
	m.locked(func(fx *effects) {
		m.request(fx, url, id, size, listener)
	})
}

// Cancel detaches the passed requester from every pending lookup and in-flight download.
// Downloads left with no requesters are canceled. Canceling an unknown or finished
// requester is a no-op.
func (m *Manager) Cancel(id types.RequesterID) {
	m.locked(func(fx *effects) {
		m.cancel(fx, id)
	})
}

// ClearCache empties the memory cache and the disk store. In-flight requests and the
// failed URL set are not affected.
func (m *Manager) ClearCache() error {
	m.memory.Clear()
	if err := m.store.DeleteAll(); err != nil {
		return err
	}
	log.Info("image cache cleared")
	return nil
}

// Stats returns counts of the manager's pending lookups, in-flight downloads and
// failed URLs.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, lookups := range m.pending {
		s.Pending += len(lookups)
	}
	s.InFlight = len(m.inflight)
	s.Failed = len(m.failed)
	return s
}

// Close cancels every in-flight download and drops every pending request. Work that
// finishes after Close is discarded. Close is idempotent.
func (m *Manager) Close() {
	m.locked(m.shutdown)
	m.cancelCtx()
}

// effects is what a critical section decided to do once mu is released
type effects struct {
	lookups    []*lookup
	starts     []*inflight
	cancels    []Fetcher
	deliveries []delivery
}

// delivery is one listener call. A nil img is a failure.
type delivery struct {
	listener types.Listener
	url      string
	img      *types.DecodedImage
}

func (fx *effects) succeed(l types.Listener, url string, img *types.DecodedImage) {
	fx.deliveries = append(fx.deliveries, delivery{listener: l, url: url, img: img})
}

func (fx *effects) fail(l types.Listener, url string) {
	fx.deliveries = append(fx.deliveries, delivery{listener: l, url: url})
}

// locked runs f with mu held, then carries out what f decided on the calling goroutine.
// Whatever a listener or a Fetcher does, including calling back into the manager, it
// does without mu held.
func (m *Manager) locked(f func(fx *effects)) {
	var fx effects
	m.mu.Lock()
	f(&fx)
	m.mu.Unlock()

	for _, fetcher := range fx.cancels {
		fetcher.Cancel()
	}
	for _, lk := range fx.lookups {
		m.goWork(func() {
			img := m.diskLookup(lk)
			m.locked(func(fx *effects) {
				m.diskLookupDone(fx, lk, img)
			})
		})
	}
	for _, inf := range fx.starts {
		inf.fetcher.Start(func(res downloader.Result) {
			m.fetched(inf, res)
		})
	}
	for _, d := range fx.deliveries {
		if d.img != nil {
			d.listener.OnSuccess(d.img, d.url)
		} else {
			d.listener.OnFailure(d.url)
		}
	}
}

// goWork runs f on a new goroutine once a worker slot is free. Nothing runs after Close.
func (m *Manager) goWork(f func()) {
	go func() {
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			return
		}
		defer m.sem.Release(1)
		f()
	}()
}

func (m *Manager) shutdown(fx *effects) {
	if m.closed {
		return
	}
	m.closed = true
	for _, lookups := range m.pending {
		for lk := range lookups {
			lk.canceled.Store(true)
		}
	}
	for _, inf := range m.inflight {
		inf.canceled.Store(true)
		fx.cancels = append(fx.cancels, inf.fetcher)
	}
	m.pending = make(map[types.RequesterID]map[*lookup]struct{})
	m.inflight = make(map[string]*inflight)
	m.memberships = make(map[types.RequesterID]map[*inflight]struct{})
	log.Debug("request manager closed")
}
