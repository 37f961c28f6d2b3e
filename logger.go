// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"log/slog"
	"net/http"
	"time"
)

// Keys for "built-in" logger attributes used by the HTTP request logging.
const (
	// LoggerStatusKey is the key used for the HTTP response status code.
	// The associated [slog.Value] is an int.
	LoggerStatusKey = "status"
	// LoggerMethodKey is the key used for the HTTP request method.
	// The associated [slog.Value] is a string.
	LoggerMethodKey = "method"
	// LoggerPathKey is the key used for the request path.
	// The associated [slog.Value] is a string.
	LoggerPathKey = "path"
	// LoggerLatencyKey is the key used for the request processing duration.
	// The associated [slog.Value] is a time.Duration.
	LoggerLatencyKey = "latency"
)

// statusWriter captures the status code written by the introspection handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// requestLogger wraps the introspection handler and logs every request.
// Status codes are logged at different levels: 2xx at DEBUG (introspection
// polling is chatty), 4xx at WARN, and 5xx at ERROR.
func requestLogger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		latency := time.Since(start)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		log.Log(r.Context(), level(sw.status), "oscquery http request",
			slog.Int(LoggerStatusKey, sw.status),
			slog.String(LoggerMethodKey, r.Method),
			slog.String(LoggerPathKey, r.URL.Path),
			slog.Duration(LoggerLatencyKey, latency),
		)
	})
}

func level(status int) slog.Level {
	switch {
	case status >= 400 && status < 500:
		return slog.LevelWarn
	case status >= 500:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
