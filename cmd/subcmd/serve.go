package subcmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"imagefetch/impl"
	"imagefetch/impl/config"
	"imagefetch/impl/globals"
	"imagefetch/impl/metrics"
	"imagefetch/impl/preload"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const startupBanner = `----------------------------------------------------------------------
imagefetch: deduplicating, two-tier caching image fetcher
Version: %s, build date: %s
Started: %s (port %d)
Running as (uid:gid) %d:%d
Process id: %d
Tls: %s
Cache: %s (memory %d bytes, disk %d bytes)
Command line: %v
----------------------------------------------------------------------
`

// listener will be initialized with the Echo listener once the Echo server
// is started.
var (
	listener   net.Listener
	listenerMu sync.Mutex
)

// Serve runs the image server, blocking until stopped with CTRL-C or via the
// command REST API.
func Serve(buildVer string, buildDtm string) error {
	tlsCfg, err := config.ServerTlsConfig()
	if err != nil {
		return fmt.Errorf("error parsing TLS configuration: %s", err)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	mgr, memory, err := newManager(store)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.GetPreloadFile() != "" {
		cnt, err := preload.Load(ctx, mgr, config.GetPreloadFile(), int(config.GetWorkers()))
		if err != nil {
			return fmt.Errorf("error pre-loading images: %s", err)
		}
		log.Infof("pre-loaded %d image(s)", cnt)
	}

	if cf := config.GetConfigFile(); cf != "" {
		go func() {
			err := config.Watch(ctx, cf, func(newCfg config.Configuration) {
				log.Infof("configuration file changed, applying log level %q", newCfg.LogLevel)
				if newCfg.LogLevel != "" {
					globals.SetLogLevel(newCfg.LogLevel)
				}
			})
			if err != nil {
				log.Errorf("unable to watch configuration file %s: %s", cf, err)
			}
		}()
	}

	shutdownCh := make(chan bool)
	imageFetch := impl.NewImageFetch(mgr, memory, shutdownCh)

	// Echo router
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	impl.RegisterHandlers(e, imageFetch)

	fmt.Fprintf(os.Stderr, startupBanner, buildVer, buildDtm, time.Unix(0, time.Now().UnixNano()), config.GetPort(),
		os.Getuid(), os.Getgid(), os.Getpid(), tlsMsg(), store.Dir(), memory.Capacity(), store.Capacity(),
		strings.Join(os.Args, " "))

	go health()
	metrics.InitMetrics(config.GetMetrics())

	// start the API server
	go func() {
		addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(config.GetPort())))
		if tlsCfg != nil {
			s := http.Server{
				Addr:      addr,
				Handler:   e,
				TLSConfig: tlsCfg,
			}
			if err := e.StartServer(&s); err != http.ErrServerClosed {
				e.Logger.Fatal("shutting down the server. error:", err)
			}
		} else {
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				e.Logger.Fatal("shutting down the server. error:", err)
			}
		}
	}()
	if err := waitForEchoListener(e); err != nil {
		return errors.New("timed out waiting for Echo listener")
	}
	setListener(getEchoListener(e))
	log.Info("server is running")

	<-shutdownCh
	log.Infof("received stop command - stopping")
	e.Server.Shutdown(context.Background())
	log.Infof("stopped")
	return nil
}

// tlsMsg formats the server TLS configuration for the startup banner
func tlsMsg() string {
	msg := "none"
	tlsCfg := config.GetServerTlsCfg()
	if tlsCfg.Cert != "" && tlsCfg.Key != "" {
		msg = fmt.Sprintf("cert=%s, key=%s", tlsCfg.Cert, tlsCfg.Key)
	}
	if tlsCfg.CA != "" {
		msg = fmt.Sprintf("%s, ca=%s", msg, tlsCfg.CA)
	}
	if msg != "none" {
		return fmt.Sprintf("%s, client verify=%s", msg, tlsCfg.ClientAuth)
	}
	return "none"
}

var healthOnce sync.Once

// health handles the /health endpoint always on plain HTTP and is not part of the
// server itself, hence a separate goroutine running an http server.
func health() {
	if config.GetHealth() == 0 {
		return
	}
	healthOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if err := http.ListenAndServe(fmt.Sprintf(":%d", config.GetHealth()), mux); err != nil {
			log.Errorf("health server stopped: %s", err)
		}
	})
}

// getEchoListener gets the Echo listener. Supports unit testing.
func getEchoListener(e *echo.Echo) net.Listener {
	if e.ListenerAddr() != nil {
		return e.Listener
	}
	if e.TLSListenerAddr() != nil {
		return e.TLSListener
	}
	return nil
}

// waitForEchoListener waits for the Listener in the Echo server to be initialized. This
// is only used in unit testing so that the unit tests can start the server on ":0" and let
// the http package assign a random port number. Supports unit testing.
func waitForEchoListener(e *echo.Echo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if e.ListenerAddr() != nil || e.TLSListenerAddr() != nil {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func setListener(l net.Listener) {
	listenerMu.Lock()
	defer listenerMu.Unlock()
	listener = l
}

// GetListener supports unit testing.
func GetListener() net.Listener {
	listenerMu.Lock()
	defer listenerMu.Unlock()
	return listener
}

// InitListener supports unit testing.
func InitListener() {
	setListener(nil)
}
