package mock

import (
	"bytes"
	"crypto/tls"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockParams supports different configurations for the mock image server
type MockParams struct {
	Scheme  SchemeType
	DelayMs int
	// Certs, if set with the HTTPS scheme, supplies the server cert. Otherwise
	// httptest's built-in self-signed cert is used.
	Certs *CertSetup
}

// SchemeType specifies http or https
type SchemeType string

const (
	HTTP  SchemeType = "http"
	HTTPS SchemeType = "https"
)

var re = regexp.MustCompile(`^/img/([0-9]+)x([0-9]+)\.(png|jpg)$`)

// NewMockParams returns a 'MockParams' instance from the passed args.
func NewMockParams(scheme SchemeType) MockParams {
	return MockParams{
		Scheme: scheme,
	}
}

// Server simply calls ServerWithCallback with no callback function
func Server(params MockParams) *httptest.Server {
	return ServerWithCallback(params, nil)
}

// ServerWithCallback runs the mock image server. If a callback function is passed, it
// is called with the request path on each invocation of the server's 'HandlerFunc'.
func ServerWithCallback(params MockParams, callback *func(string)) *httptest.Server {
	if callback == nil {
		return ServerWithRequestHook(params, nil)
	}
	return ServerWithRequestHook(params, func(r *http.Request) {
		(*callback)(r.URL.Path)
	})
}

// ServerWithRequestHook runs the mock image server, calling hook (if not nil) with
// every request before it is handled. Supported paths:
//
//	/img/WxH.png      a W by H PNG
//	/img/WxH.jpg      a W by H JPEG
//	/redirect/...     302 to the remainder of the path
//	/corrupt.png      200 with bytes that are not an image
//	/status/NNN       an empty response with status NNN
//
// Anything else is a 404.
func ServerWithRequestHook(params MockParams, hook func(*http.Request)) *httptest.Server {
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hook != nil {
			hook(r)
		}
		// delayMs supports simulating slow links. The delay gives up if the client goes away
		// so canceled downloads are observable.
		if params.DelayMs != 0 {
			select {
			case <-time.After(time.Duration(params.DelayMs) * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		p := r.URL.Path
		switch {
		case strings.HasPrefix(p, "/redirect/"):
			http.Redirect(w, r, strings.TrimPrefix(p, "/redirect"), http.StatusFound)
		case p == "/corrupt.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("this is not a png"))
		case strings.HasPrefix(p, "/status/"):
			code, err := strconv.Atoi(strings.TrimPrefix(p, "/status/"))
			if err != nil {
				code = http.StatusBadRequest
			}
			w.WriteHeader(code)
		default:
			m := re.FindStringSubmatch(p)
			if len(m) != 4 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			width, _ := strconv.Atoi(m[1])
			height, _ := strconv.Atoi(m[2])
			var b []byte
			if m[3] == "png" {
				b = PNG(width, height)
				w.Header().Set("Content-Type", "image/png")
			} else {
				b = JPEG(width, height)
				w.Header().Set("Content-Type", "image/jpeg")
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(b)))
			w.Write(b)
		}
	}))
	if params.Scheme == HTTPS {
		if params.Certs != nil {
			server.TLS = &tls.Config{Certificates: []tls.Certificate{params.Certs.ServerCert}}
		}
		server.StartTLS()
	} else {
		server.Start()
	}
	return server
}

var (
	mu      sync.Mutex
	encoded = map[string][]byte{}
)

// PNG returns a PNG encoding of a width by height test pattern. Encodings are
// memoized since the tests ask for the same few sizes over and over.
func PNG(width, height int) []byte {
	return encode("png", width, height)
}

// JPEG returns a JPEG encoding of a width by height test pattern.
func JPEG(width, height int) []byte {
	return encode("jpg", width, height)
}

func encode(format string, width, height int) []byte {
	key := format + ":" + strconv.Itoa(width) + "x" + strconv.Itoa(height)
	mu.Lock()
	defer mu.Unlock()
	if b, exists := encoded[key]; exists {
		return b
	}
	img := Pattern(width, height)
	var buf bytes.Buffer
	var err error
	if format == "png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		panic(err)
	}
	encoded[key] = buf.Bytes()
	return encoded[key]
}

// Pattern returns an opaque NRGBA gradient of the passed size
func Pattern(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xff})
		}
	}
	return img
}
