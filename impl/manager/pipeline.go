package manager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"imagefetch/impl/cachekey"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/downloader"
	"imagefetch/impl/metrics"
	"imagefetch/types"

	log "github.com/sirupsen/logrus"
)

// request is the memory tier
func (m *Manager) request(fx *effects, url string, id types.RequesterID, size types.Size, listener types.Listener) {
	if m.closed {
		return
	}
	if _, failed := m.failed[url]; failed {
		metrics.IncBlacklistDrops()
		log.Debugf("dropping request for previously failed url: %s", url)
		return
	}
	key := cachekey.KeyFor(url)
	if img, ok := m.memory.Get(key); ok {
		metrics.IncCacheHits(metrics.Memory)
		log.Debugf("memory hit %s: %s", cachekey.ShortKey(key), url)
		fx.succeed(listener, url, img)
		return
	}
	metrics.IncCacheMisses(metrics.Memory)
	lk := &lookup{
		id:       id,
		url:      url,
		key:      key,
		size:     size,
		listener: listener,
	}
	m.addPending(lk)
	fx.lookups = append(fx.lookups, lk)
}

// diskLookup runs on a worker. It returns nil on a miss, or if the bytes on disk
// could not be decoded.
func (m *Manager) diskLookup(lk *lookup) *types.DecodedImage {
	if lk.canceled.Load() {
		return nil
	}
	data, err := m.store.Get(lk.key)
	if err != nil {
		if !errors.Is(err, diskstore.ErrNotFound) {
			log.Errorf("disk store lookup failed for %s: %s", cachekey.ShortKey(lk.key), err)
		}
		return nil
	}
	if lk.canceled.Load() {
		return nil
	}
	img, err := m.decode(data, lk.size)
	if err != nil {
		log.Warnf("ignoring undecodable disk entry %s for %s: %s", cachekey.ShortKey(lk.key), lk.url, err)
		return nil
	}
	return img
}

// diskLookupDone is where the disk tier either delivers or falls through to the
// network tier
func (m *Manager) diskLookupDone(fx *effects, lk *lookup, img *types.DecodedImage) {
	if !m.removePending(lk) {
		return
	}
	if img != nil {
		metrics.IncCacheHits(metrics.Disk)
		log.Debugf("disk hit %s: %s", cachekey.ShortKey(lk.key), lk.url)
		m.memory.Put(lk.key, img)
		fx.succeed(lk.listener, lk.url, img)
		return
	}
	metrics.IncCacheMisses(metrics.Disk)
	// a download for this URL may have failed while the disk was being checked
	if _, failed := m.failed[lk.url]; failed {
		fx.fail(lk.listener, lk.url)
		return
	}
	w := &waiter{id: lk.id, size: lk.size, listener: lk.listener}
	if inf, exists := m.inflight[lk.url]; exists {
		metrics.IncDownloadJoins()
		log.Debugf("joining in-flight download: %s", lk.url)
		inf.waiters = append(inf.waiters, w)
		m.addMembership(lk.id, inf)
		return
	}
	m.startDownload(fx, lk, w)
}

func (m *Manager) startDownload(fx *effects, lk *lookup, w *waiter) {
	inf := &inflight{
		url:     lk.url,
		key:     lk.key,
		size:    lk.size,
		waiters: []*waiter{w},
	}
	m.inflight[lk.url] = inf
	m.addMembership(lk.id, inf)
	inf.fetcher = m.fetch(lk.url)
	metrics.IncDownloads()
	log.Debugf("starting download: %s", lk.url)
	fx.starts = append(fx.starts, inf)
}

// fetched may be called on any goroutine, including from inside Fetcher.Start. The body
// is read without holding a worker slot so that slow transfers cannot hold up disk
// lookups. Only persisting and decoding take a slot.
func (m *Manager) fetched(inf *inflight, res downloader.Result) {
	if res.Err != nil {
		go m.finishDownload(inf, nil, res.Err)
		return
	}
	go func() {
		data, err := readBody(inf, res.Body)
		if err != nil {
			m.finishDownload(inf, nil, err)
			return
		}
		m.goWork(func() {
			img, err := m.persistAndDecode(inf, data)
			m.finishDownload(inf, img, err)
		})
	}()
}

func (m *Manager) finishDownload(inf *inflight, img *types.DecodedImage, err error) {
	m.locked(func(fx *effects) {
		m.downloadDone(fx, inf, img, err)
	})
}

func readBody(inf *inflight, body io.ReadCloser) ([]byte, error) {
	defer body.Close()
	if inf.canceled.Load() {
		return nil, errCanceled
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return buf.Bytes(), nil
}

// persistAndDecode runs on a worker. The bytes are committed to the disk store, then
// decoded. A disk store failure is logged but does not fail the request. Bytes that do
// not decode are removed from the store again.
func (m *Manager) persistAndDecode(inf *inflight, data []byte) (*types.DecodedImage, error) {
	if inf.canceled.Load() {
		return nil, errCanceled
	}
	if err := m.persist(inf.key, data); err != nil {
		log.Errorf("unable to persist %s for %s: %s", cachekey.ShortKey(inf.key), inf.url, err)
	}
	img, err := m.decode(data, inf.size)
	if err != nil {
		if err := m.store.Delete(inf.key); err != nil {
			log.Errorf("unable to remove undecodable entry %s: %s", cachekey.ShortKey(inf.key), err)
		}
		return nil, err
	}
	return img, nil
}

func (m *Manager) persist(key string, data []byte) error {
	w, err := m.store.Writer(key)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Commit()
}

var errCanceled = errors.New("download canceled")

// downloadDone removes the download from the in-flight index and queues the result for
// its waiters in one step, so nobody can join a download that is delivering.
func (m *Manager) downloadDone(fx *effects, inf *inflight, img *types.DecodedImage, err error) {
	if m.inflight[inf.url] != inf {
		// canceled, or the manager was closed
		return
	}
	delete(m.inflight, inf.url)
	for _, w := range inf.waiters {
		m.removeMembership(w.id, inf)
	}
	if err != nil {
		m.failed[inf.url] = struct{}{}
		metrics.IncDownloadFailures()
		log.Warnf("download failed, url will not be retried: %s: %s", inf.url, err)
		for _, w := range inf.waiters {
			fx.fail(w.listener, inf.url)
		}
		return
	}
	m.memory.Put(inf.key, img)
	log.Debugf("download complete %s, delivering to %d waiter(s): %s", cachekey.ShortKey(inf.key), len(inf.waiters), inf.url)
	for _, w := range inf.waiters {
		fx.succeed(w.listener, inf.url, img)
	}
}

func (m *Manager) cancel(fx *effects, id types.RequesterID) {
	for lk := range m.pending[id] {
		lk.canceled.Store(true)
	}
	delete(m.pending, id)
	for inf := range m.memberships[id] {
		inf.waiters = slices.DeleteFunc(inf.waiters, func(w *waiter) bool {
			return w.id == id
		})
		if len(inf.waiters) == 0 {
			inf.canceled.Store(true)
			fx.cancels = append(fx.cancels, inf.fetcher)
			delete(m.inflight, inf.url)
			metrics.IncDownloadCancels()
			log.Debugf("canceled download with no remaining waiters: %s", inf.url)
		}
	}
	delete(m.memberships, id)
}

func (m *Manager) addPending(lk *lookup) {
	lookups, ok := m.pending[lk.id]
	if !ok {
		lookups = make(map[*lookup]struct{})
		m.pending[lk.id] = lookups
	}
	lookups[lk] = struct{}{}
}

// removePending returns false if the lookup was no longer pending
func (m *Manager) removePending(lk *lookup) bool {
	lookups, ok := m.pending[lk.id]
	if !ok {
		return false
	}
	if _, ok := lookups[lk]; !ok {
		return false
	}
	delete(lookups, lk)
	if len(lookups) == 0 {
		delete(m.pending, lk.id)
	}
	return true
}

func (m *Manager) addMembership(id types.RequesterID, inf *inflight) {
	infs, ok := m.memberships[id]
	if !ok {
		infs = make(map[*inflight]struct{})
		m.memberships[id] = infs
	}
	infs[inf] = struct{}{}
}

func (m *Manager) removeMembership(id types.RequesterID, inf *inflight) {
	if infs, ok := m.memberships[id]; ok {
		delete(infs, inf)
		if len(infs) == 0 {
			delete(m.memberships, id)
		}
	}
}
