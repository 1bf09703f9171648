package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/zonemesh-go/internal/infra/confloader"
	"github.com/yndnr/zonemesh-go/internal/infra/shutdown"
	"github.com/yndnr/zonemesh-go/internal/infra/tlsroots"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/server/clusterserver"
	"github.com/yndnr/zonemesh-go/internal/server/config"
	"github.com/yndnr/zonemesh-go/internal/server/httpserver"
	"github.com/yndnr/zonemesh-go/internal/server/localserver"
	"github.com/yndnr/zonemesh-go/internal/storage"
	"github.com/yndnr/zonemesh-go/internal/storage/memory"
	"github.com/yndnr/zonemesh-go/internal/telemetry/logger"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
	"github.com/yndnr/zonemesh-go/pkg/token"
)

const (
	shutdownTimeout = 30 * time.Second
	gossipLeaveWait = 5 * time.Second
	adminRateBurst  = 40
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"ZONEMESH_CONFIG"},
			},
			&cli.StringFlag{Name: "name", Usage: "peer name (peer.name)"},
			&cli.StringFlag{Name: "listen", Usage: "peer listener address (cluster.listen_addr)"},
			&cli.StringFlag{Name: "admin", Usage: "admin HTTP address, empty to disable (admin.addr)"},
			&cli.StringFlag{Name: "admin-socket", Usage: "admin Unix socket path (admin.socket)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (log.level)"},
		},
		Action: serve,
	}
}

// overrides maps the command-line flags that were set to config keys.
func overrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"name":         "peer.name",
		"listen":       "cluster.listen_addr",
		"admin":        "admin.addr",
		"admin-socket": "admin.socket",
		"log-level":    "log.level",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}

// loadConfig loads defaults, the file, overrides and the environment, in
// increasing precedence, and verifies the result.
func loadConfig(path string, values map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()
	opts := []confloader.Option{confloader.WithOverrides(values)}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	configPath := c.String("config")
	values := overrides(c)
	cfg, err := loadConfig(configPath, values)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogger := log.Slog()

	info := buildinfo.Get()
	name := config.PeerName(cfg)
	slogger.Info("starting zonemesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"peer", name,
		"config", configPath,
		"store", cfg.Cluster.Store,
		"cluster_fingerprint", token.Fingerprint(cfg.Peer.SharedSecret))
	slogger.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	stop := shutdown.NewHandler(shutdownTimeout, slogger)
	// abort releases what was opened so far when startup fails.
	abort := func(err error) error {
		stop.Trigger("startup failed")
		_ = stop.Wait(context.Background())
		return err
	}

	// The gossip store is created before the node it notifies.
	var node atomic.Pointer[clusterserver.Node]
	store, err := openPeerStore(cfg, name, slogger, metrics, stop, func() {
		if n := node.Load(); n != nil {
			n.TriggerRefresh()
		}
	})
	if err != nil {
		return abort(err)
	}

	nodeCfg, err := config.ToNodeConfig(cfg, name, store, slogger, metrics)
	if err != nil {
		return abort(err)
	}
	n, err := clusterserver.New(nodeCfg)
	if err != nil {
		return abort(fmt.Errorf("create node: %w", err))
	}
	stop.OnShutdown("node", n.Shutdown)
	if err := n.Start(c.Context); err != nil {
		return abort(fmt.Errorf("start node: %w", err))
	}
	node.Store(n)
	self := n.Self()
	slogger.Info("peer listening", "addr", n.Addr().String(), "internal_addr", self.InternalAddr())

	if cfg.Admin.Addr != "" {
		if err := startAdmin(cfg, n, metrics, slogger, stop); err != nil {
			return abort(err)
		}
	}
	if cfg.Admin.Socket != "" {
		if err := startLocal(cfg, n, metrics, slogger, stop); err != nil {
			return abort(err)
		}
	}

	if configPath != "" {
		if err := watchConfig(configPath, values, slogger, stop); err != nil {
			slogger.Warn("config watcher disabled", "error", err)
		}
	}

	return stop.Wait(c.Context)
}

// openPeerStore builds the peer registry selected by cluster.store and
// registers the hooks that close it.
func openPeerStore(cfg *config.ServerConfig, name string, log *slog.Logger, metrics *metric.Registry, stop *shutdown.Handler, onChange func()) (membership.PeerStore, error) {
	if cfg.Cluster.Store == config.StoreMemory {
		log.Warn("memory peer store: this peer can only see itself")
		return memory.New(), nil
	}

	engine, err := storage.NewBadgerEngine(storage.DefaultKVConfig(cfg.Storage.DataDir), log)
	if err != nil {
		return nil, fmt.Errorf("open peer store: %w", err)
	}
	stop.OnShutdown("badger", func(context.Context) error { return engine.Close() })
	if err := engine.RegisterMetrics(metrics.Registerer()); err != nil {
		return nil, err
	}
	local := storage.NewPeerStore(engine)
	if cfg.Cluster.Store == config.StoreBadger {
		return local, nil
	}

	gossip, err := clusterserver.NewGossipStore(config.ToGossipConfig(cfg, name, onChange, log))
	if err != nil {
		return nil, err
	}
	stop.OnShutdown("gossip", func(context.Context) error {
		if err := gossip.Leave(gossipLeaveWait); err != nil {
			log.Warn("gossip leave failed", "error", err)
		}
		return gossip.Shutdown()
	})
	log.Info("gossip started", "addr", gossip.Addr())
	return storage.NewCachedPeerStore(gossip, local, log), nil
}

func startAdmin(cfg *config.ServerConfig, n *clusterserver.Node, metrics *metric.Registry, log *slog.Logger, stop *shutdown.Handler) error {
	srv := httpserver.New(cfg.Admin.Addr, httpserver.NewRouter(httpserver.RouterConfig{
		Node:      n,
		Logger:    log,
		Gatherer:  metrics.Gatherer(),
		AllowList: cfg.Admin.AllowList,
		RateLimit: cfg.Admin.RateLimit,
		RateBurst: adminRateBurst,
	}))
	if cfg.Admin.TLSCertFile != "" {
		certs, err := tlsroots.NewCertReloader(cfg.Admin.TLSCertFile, cfg.Admin.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return fmt.Errorf("admin tls: %w", err)
		}
		certs.StartAsync()
		stop.OnShutdown("admin-certs", func(context.Context) error { return certs.Stop() })
		srv.UseTLS(certs.ServerConfig())
	}
	stop.OnShutdown("admin", srv.Shutdown)
	go func() {
		log.Info("admin server listening", "addr", cfg.Admin.Addr, "tls", cfg.Admin.TLSCertFile != "")
		if err := srv.ListenAndServe(); err != nil {
			log.Error("admin server failed", "error", err)
			stop.Trigger("admin server failed")
		}
	}()
	return nil
}

// startLocal serves the admin API on admin.socket. The socket is guarded
// by its file mode instead of the allow list.
func startLocal(cfg *config.ServerConfig, n *clusterserver.Node, metrics *metric.Registry, log *slog.Logger, stop *shutdown.Handler) error {
	srv := localserver.New(cfg.Admin.Socket, httpserver.NewRouter(httpserver.RouterConfig{
		Node:     n,
		Logger:   log,
		Gatherer: metrics.Gatherer(),
	}))
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("admin socket: %w", err)
	}
	stop.OnShutdown("admin-socket", srv.Shutdown)
	go func() {
		log.Info("admin socket listening", "path", srv.Path())
		if err := srv.Serve(); err != nil {
			log.Error("admin socket failed", "error", err)
			stop.Trigger("admin socket failed")
		}
	}()
	return nil
}

// watchConfig reloads the file on change. Only log.level is applied to
// the running process; other changes need a restart.
func watchConfig(path string, values map[string]any, log *slog.Logger, stop *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path, values)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("configuration reloaded", "log_level", logger.GetLevel())
	})
	w.StartAsync()
	stop.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
	return nil
}
