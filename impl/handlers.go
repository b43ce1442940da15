package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"imagefetch/impl/cachekey"
	"imagefetch/impl/manager"
	"imagefetch/impl/metrics"
	"imagefetch/types"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// maxDimension bounds the width and height a client can ask for
const maxDimension = 1 << 14

// GET /image
func (r *ImageFetch) handleGetImage(ctx echo.Context) error {
	metrics.IncImageEndpointHits()
	url := ctx.QueryParam("url")
	if url == "" {
		metrics.IncApiErrorResults()
		return ctx.String(http.StatusBadRequest, "missing url parameter\n")
	}
	size, err := parseSize(ctx.QueryParam("width"), ctx.QueryParam("height"))
	if err != nil {
		metrics.IncApiErrorResults()
		return ctx.String(http.StatusBadRequest, err.Error()+"\n")
	}
	img, err := r.mgr.Fetch(ctx.Request().Context(), url, size)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// the client went away, there is nobody to respond to
			log.Debugf("client canceled request for %s", url)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			metrics.IncApiErrorResults()
			return ctx.String(http.StatusGatewayTimeout, "timed out fetching image\n")
		case errors.Is(err, manager.ErrFailed):
			metrics.IncApiErrorResults()
			return ctx.String(http.StatusBadGateway, "unable to fetch image\n")
		case errors.Is(err, manager.ErrClosed):
			metrics.IncApiErrorResults()
			return ctx.String(http.StatusServiceUnavailable, "server is stopping\n")
		}
		metrics.IncApiErrorResults()
		log.Errorf("error getting image %s: %s", url, err)
		return ctx.NoContent(http.StatusInternalServerError)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		metrics.IncApiErrorResults()
		log.Errorf("error encoding image %s: %s", url, err)
		return ctx.NoContent(http.StatusInternalServerError)
	}
	h := ctx.Response().Header()
	h.Set("X-Cache-Key", cachekey.KeyFor(url))
	h.Set("X-Source-Size", fmt.Sprintf("%dx%d", img.Source.Width, img.Source.Height))
	h.Set("X-Source-Format", img.Format)
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	return ctx.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// parseSize parses the optional width and height query params. Either one missing
// means decode at the natural size.
func parseSize(width, height string) (types.Size, error) {
	if width == "" || height == "" {
		return types.NoSize, nil
	}
	w, err := strconv.Atoi(width)
	if err != nil || w < 0 || w > maxDimension {
		return types.NoSize, fmt.Errorf("invalid width: %q", width)
	}
	h, err := strconv.Atoi(height)
	if err != nil || h < 0 || h > maxDimension {
		return types.NoSize, fmt.Errorf("invalid height: %q", height)
	}
	return types.Size{Width: w, Height: h}, nil
}
