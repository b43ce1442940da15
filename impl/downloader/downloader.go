// Package downloader performs one network fetch of one image URL. A Downloader reports
// exactly one terminal result unless it is canceled first, in which case it reports
// nothing at all.
package downloader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each phase of one fetch: connecting, the TLS handshake, waiting
// for the response headers, and any one wait for more of the body. A transfer that
// keeps making progress is not cut off.
const DefaultTimeout = 30 * time.Second

// maxRedirects matches the net/http default
const maxRedirects = 10

// ErrStatus is wrapped by the error reported for a non-2xx response
var ErrStatus = errors.New("unexpected http status")

// ErrIdle is returned by a body Read when no data arrived within the timeout
var ErrIdle = errors.New("response body stalled")

// Result is the terminal result of a fetch. If Err is nil the fetch succeeded and
// the receiver owns Body and must close it. A Read of the body fails with ErrIdle if
// the server sends nothing for the timeout.
type Result struct {
	Body io.ReadCloser
	Err  error
}

// Downloader fetches one URL
type Downloader struct {
	sync.Mutex
	url       string
	client    *http.Client
	userAgent string
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	canceled  bool
}

// Options configures the HTTP client shared by all the downloaders built by a Factory
type Options struct {
	Timeout   time.Duration
	UserAgent string
	TlsCfg    *tls.Config
}

// Factory builds downloaders that share one HTTP client
type Factory struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewFactory creates a Factory from the passed options. A zero timeout means
// DefaultTimeout.
func NewFactory(opts Options) *Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.Timeout
	transport.ResponseHeaderTimeout = opts.Timeout
	if opts.TlsCfg != nil {
		transport.TLSClientConfig = opts.TlsCfg
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Factory{client: client, userAgent: opts.UserAgent, timeout: opts.Timeout}
}

// New returns a Downloader for the passed URL. Nothing happens until Start.
func (f *Factory) New(url string) *Downloader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		url:       url,
		client:    f.client,
		userAgent: f.userAgent,
		timeout:   f.timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the fetch on a new goroutine and calls done with the result, at most
// once. Calling Start more than once has no effect. done is called with the Downloader
// locked, so it must not call Cancel. Once Cancel returns, done has either returned
// already or will never be called.
func (d *Downloader) Start(done func(Result)) {
	d.Lock()
	if d.started || d.canceled {
		d.Unlock()
		return
	}
	d.started = true
	d.Unlock()
	go d.fetch(done)
}

// Cancel aborts the fetch. It is safe to call at any time and any number of times. If
// the result was already delivered, reads of the body start failing.
func (d *Downloader) Cancel() {
	d.Lock()
	defer d.Unlock()
	d.canceled = true
	d.cancel()
}

// URL returns the URL being fetched
func (d *Downloader) URL() string {
	return d.url
}

func (d *Downloader) fetch(done func(Result)) {
	start := time.Now()
	res := d.get()
	d.Lock()
	defer d.Unlock()
	if d.canceled {
		if res.Body != nil {
			res.Body.Close()
		}
		log.Debugf("fetch canceled: %s", d.url)
		return
	}
	if res.Err != nil {
		d.cancel()
		log.Debugf("fetch failed after %s: %s: %s", time.Since(start), d.url, res.Err)
	} else {
		log.Debugf("fetch response after %s: %s", time.Since(start), d.url)
	}
	done(res)
}

func (d *Downloader) get() Result {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return Result{Err: err}
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return Result{Err: fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, d.url)}
	}
	return Result{Body: newBody(resp.Body, d.timeout, d.cancel)}
}

// body cancels the request if no data arrives for the timeout, and releases the
// request context when the receiver is done with it
type body struct {
	io.ReadCloser
	timeout time.Duration
	cancel  context.CancelFunc
	idle    *time.Timer
	stalled atomic.Bool
}

func newBody(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *body {
	b := &body{ReadCloser: rc, timeout: timeout, cancel: cancel}
	b.idle = time.AfterFunc(timeout, func() {
		b.stalled.Store(true)
		cancel()
	})
	return b
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && b.stalled.Load() {
		return n, fmt.Errorf("%w: nothing received for %s", ErrIdle, b.timeout)
	}
	if n > 0 {
		b.idle.Reset(b.timeout)
	}
	return n, err
}

func (b *body) Close() error {
	b.idle.Stop()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
