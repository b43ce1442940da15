package globals

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const msg = "echo server %s:%s status=%d latency=%s host=%s ip=%s"

// maxLoggedParam is the longest query parameter value logged as-is. Image URLs
// clutter the logs so longer values are shortened.
const maxLoggedParam = 48

// ConfigureLogging sets the logger level, and if logFile is not the empty string,
// directs log output to that file.
func ConfigureLogging(level string, logFile string) error {
	log.SetLevel(xlatLogLevel(level))
	log.SetFormatter(&log.TextFormatter{})
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("unable to open log file %s: %w", logFile, err)
		}
		log.SetOutput(f)
	}
	return nil
}

// SetLogLevel changes the level without touching the output, e.g. when the
// configuration file is changed while the server is running.
func SetLogLevel(level string) {
	log.SetLevel(xlatLogLevel(level))
}

// xlatLogLevel translates the passed 'level' string to a logger const
func xlatLogLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "TRACE":
		return log.TraceLevel
	}
	return log.FatalLevel
}

// GetEchoLoggingFunc gets the echo server logging function
func GetEchoLoggingFunc() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			// don't log the health check because it clutters the log and it is intended to
			// be used by Kubernetes anyway so doesn't need to be logged
			if req.URL.Path == "/health" {
				return nil
			}

			flds := make([]interface{}, 6)
			flds[0] = req.Method
			flds[1] = shortenURI(req.URL)
			flds[2] = res.Status
			flds[3] = time.Since(start)
			flds[4] = req.Host
			flds[5] = c.RealIP()

			switch {
			case res.Status >= 500:
				log.Errorf(msg, flds...)
			case res.Status >= 400:
				log.Warnf(msg, flds...)
			default:
				log.Infof(msg, flds...)
			}
			return nil
		}
	}
}

// shortenURI renders the path and query of the passed URL with long query parameter
// values truncated.
func shortenURI(u *url.URL) string {
	q := u.Query()
	if len(q) == 0 {
		return u.Path
	}
	for k, vals := range q {
		for i, v := range vals {
			if len(v) > maxLoggedParam {
				vals[i] = v[:maxLoggedParam] + "..."
			}
		}
		q[k] = vals
	}
	s, _ := url.QueryUnescape(q.Encode())
	return u.Path + "?" + s
}
