package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/zonemesh-go/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	Node   handler.Node
	Logger *slog.Logger

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// AllowList restricts /v1 to these IPs or CIDR blocks.
	AllowList []string

	// RateLimit is the per-client request rate of /v1. Zero disables it.
	RateLimit float64
	RateBurst int
}

// NewRouter builds the admin HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := handler.New(cfg.Node, cfg.Logger)
	base := []Middleware{Recover(cfg.Logger), RequestID(cfg.Logger), AccessLog(cfg.Logger)}

	mux := http.NewServeMux()
	mux.Handle("GET /health", Chain(h, base...))
	mux.Handle("GET /ready", Chain(h, base...))

	if cfg.Gatherer != nil {
		metrics := promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelError)})
		mux.Handle("GET /metrics", Chain(metrics, base...))
	}

	api := append(append([]Middleware{}, base...), NetworkACL(cfg.AllowList, cfg.Logger))
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		api = append(api, RateLimit(cfg.RateLimit, max(burst, 1)))
	}
	mux.Handle("GET /v1/", Chain(h, api...))
	return mux
}
