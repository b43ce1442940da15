package manager

import (
	"context"
	"errors"

	"imagefetch/types"

	"github.com/google/uuid"
)

// ErrFailed is returned by Fetch when the URL could not be fetched or decoded, now
// or on an earlier attempt.
var ErrFailed = errors.New("image fetch failed")

// ErrNoURL is returned by Fetch for an empty URL
var ErrNoURL = errors.New("no url")

type result struct {
	img *types.DecodedImage
	err error
}

// Fetch is a blocking wrapper around Request for callers that have a context instead of
// a listener, like an HTTP handler. Each call is its own requester. If ctx is done before
// the result arrives, the request is canceled and ctx.Err() is returned. Unlike Request,
// a previously failed URL is reported as ErrFailed rather than dropped.
func (m *Manager) Fetch(ctx context.Context, url string, size types.Size) (*types.DecodedImage, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	id := types.RequesterID(uuid.NewString())
	ch := make(chan result, 1)
	listener := types.ListenerFuncs{
		Success: func(img *types.DecodedImage, _ string) {
			ch <- result{img: img}
		},
		Failure: func(string) {
			ch <- result{err: ErrFailed}
		},
	}
	closed := false
	m.locked(func(fx *effects) {
		if m.closed {
			closed = true
			return
		}
		if _, failed := m.failed[url]; failed {
			ch <- result{err: ErrFailed}
			return
		}
		m.request(fx, url, id, size, listener)
	})
	if closed {
		return nil, ErrClosed
	}
	select {
	case r := <-ch:
		return r.img, r.err
	case <-ctx.Done():
		m.Cancel(id)
		// the result may have been delivered before the cancel
		select {
		case r := <-ch:
			return r.img, r.err
		default:
		}
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, ErrClosed
	}
}
