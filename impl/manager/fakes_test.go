package manager

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagefetch/impl/decoder"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/downloader"
	"imagefetch/impl/memcache"
	"imagefetch/types"

	"github.com/stretchr/testify/require"
)

// fakeFetcher is completed by the test
type fakeFetcher struct {
	sync.Mutex
	url      string
	done     func(downloader.Result)
	started  chan struct{}
	canceled bool
}

func (f *fakeFetcher) Start(done func(downloader.Result)) {
	f.Lock()
	defer f.Unlock()
	f.done = done
	close(f.started)
}

func (f *fakeFetcher) Cancel() {
	f.Lock()
	defer f.Unlock()
	f.canceled = true
}

func (f *fakeFetcher) isCanceled() bool {
	f.Lock()
	defer f.Unlock()
	return f.canceled
}

// doneFunc waits for Start, which the manager calls after releasing its lock
func (f *fakeFetcher) doneFunc() func(downloader.Result) {
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		panic("fetcher for " + f.url + " was never started")
	}
	f.Lock()
	defer f.Unlock()
	return f.done
}

func (f *fakeFetcher) succeed(data []byte) {
	f.succeedWith(io.NopCloser(bytes.NewReader(data)))
}

func (f *fakeFetcher) succeedWith(body io.ReadCloser) {
	f.doneFunc()(downloader.Result{Body: body})
}

func (f *fakeFetcher) fail() {
	f.doneFunc()(downloader.Result{Err: errors.New("connection refused")})
}

// stalledBody blocks every Read until release is closed
type stalledBody struct {
	release chan struct{}
}

func (b stalledBody) Read([]byte) (int, error) {
	<-b.release
	return 0, io.ErrUnexpectedEOF
}

func (b stalledBody) Close() error {
	return nil
}

// fakeNet hands out fake fetchers and remembers them
type fakeNet struct {
	sync.Mutex
	fetchers map[string][]*fakeFetcher
}

func newFakeNet() *fakeNet {
	return &fakeNet{fetchers: make(map[string][]*fakeFetcher)}
}

func (n *fakeNet) factory(url string) Fetcher {
	n.Lock()
	defer n.Unlock()
	f := &fakeFetcher{url: url, started: make(chan struct{})}
	n.fetchers[url] = append(n.fetchers[url], f)
	return f
}

func (n *fakeNet) count(url string) int {
	n.Lock()
	defer n.Unlock()
	return len(n.fetchers[url])
}

func (n *fakeNet) last(url string) *fakeFetcher {
	n.Lock()
	defer n.Unlock()
	f := n.fetchers[url]
	return f[len(f)-1]
}

// countingStore counts calls into a real disk store. If gate is not nil, Get waits
// for it to be closed.
type countingStore struct {
	*diskstore.Store
	gets    atomic.Int32
	commits atomic.Int32
	gate    chan struct{}
}

func (s *countingStore) Get(key string) ([]byte, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.Store.Get(key)
}

func (s *countingStore) Writer(key string) (diskstore.Writer, error) {
	w, err := s.Store.Writer(key)
	if err != nil {
		return nil, err
	}
	return &countingWriter{Writer: w, commits: &s.commits}, nil
}

type countingWriter struct {
	diskstore.Writer
	commits *atomic.Int32
}

func (w *countingWriter) Commit() error {
	err := w.Writer.Commit()
	if err == nil {
		w.commits.Add(1)
	}
	return err
}

// countingDecoder counts decodes and remembers the last requested size
type countingDecoder struct {
	sync.Mutex
	calls int
	sizes []types.Size
}

func (d *countingDecoder) decode(data []byte, size types.Size) (*types.DecodedImage, error) {
	d.Lock()
	d.calls++
	d.sizes = append(d.sizes, size)
	d.Unlock()
	return decoder.Decode(data, size)
}

func (d *countingDecoder) count() int {
	d.Lock()
	defer d.Unlock()
	return d.calls
}

// event is one listener callback
type event struct {
	id  string
	url string
	img *types.DecodedImage
	ok  bool
}

// recorder collects listener callbacks for any number of requesters
type recorder struct {
	sync.Mutex
	events []event
}

func (r *recorder) listener(id string) types.Listener {
	return types.ListenerFuncs{
		Success: func(img *types.DecodedImage, url string) {
			r.Lock()
			defer r.Unlock()
			r.events = append(r.events, event{id: id, url: url, img: img, ok: true})
		},
		Failure: func(url string) {
			r.Lock()
			defer r.Unlock()
			r.events = append(r.events, event{id: id, url: url})
		},
	}
}

func (r *recorder) all() []event {
	r.Lock()
	defer r.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) forID(id string) []event {
	evs := []event{}
	for _, e := range r.all() {
		if e.id == id {
			evs = append(evs, e)
		}
	}
	return evs
}

func (r *recorder) len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.events)
}

// harness wires a manager to fakes
type harness struct {
	m      *Manager
	net    *fakeNet
	store  *countingStore
	dec    *countingDecoder
	memory *memcache.Cache
	rec    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ds, err := diskstore.Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	h := &harness{
		net:    newFakeNet(),
		store:  &countingStore{Store: ds},
		dec:    &countingDecoder{},
		memory: memcache.New(0),
		rec:    &recorder{},
	}
	h.m, err = New(Options{
		Memory: h.memory,
		Store:  h.store,
		Fetch:  h.net.factory,
		Decode: h.dec.decode,
	})
	require.NoError(t, err)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) request(url, id string) {
	h.m.Request(url, types.RequesterID(id), types.NoSize, h.rec.listener(id))
}

// waitDownloads waits until every pending lookup has resolved into the expected
// number of in-flight downloads
func (h *harness) waitDownloads(t *testing.T, inflight int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := h.m.Stats()
		return s.Pending == 0 && s.InFlight == inflight
	}, 5*time.Second, 5*time.Millisecond)
}

func (h *harness) waitEvents(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.rec.len() >= n
	}, 5*time.Second, 5*time.Millisecond)
}
