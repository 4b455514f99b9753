package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains the configuration of the storage HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the API listens on.
	ListenAddr string

	// MetricsAddr is the address and port of the Prometheus metrics server.
	// If empty, the metrics server is not started.
	MetricsAddr string

	// EnablePprof mounts the pprof debugging API under /debug.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// DrainDuration is how long a drain request waits before reporting the
	// drain as completed, so load balancers can notice the readiness change.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Zero means no limit, which suits large uploads.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
}
