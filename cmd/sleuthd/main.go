// sleuthd is the game server: one event loop serving every player, the lobby
// directory, LAN announcements and an optional Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/sleuthnet/catalog"
	"github.com/cyberinferno/sleuthnet/config"
	"github.com/cyberinferno/sleuthnet/discovery"
	"github.com/cyberinferno/sleuthnet/lobby"
	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/metrics"
	"github.com/cyberinferno/sleuthnet/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("sleuthd", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "TCP listen address")
	flagSet.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "read buffer size in bytes")
	flagSet.IntVar(&cfg.FrameMultiple, "frame-multiple", cfg.FrameMultiple, "largest frame, in buffers")
	flagSet.StringVar(&cfg.DiscoveryAddr, "discovery", cfg.DiscoveryAddr, "UDP broadcast address for LAN announcements (empty disables)")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address serving /metrics (empty disables)")
	flagSet.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for the shared catalog cache")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.New("sleuthd", level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cases, closeCache, err := newCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	dir := lobby.NewDirectory()
	router := lobby.NewRouter(lobby.RouterConfig{
		Directory:   dir,
		Catalog:     cases,
		Logger:      log,
		Metrics:     m,
		LoadTimeout: cfg.LoadTimeout,
	})

	srv := server.New(server.Config{
		Name:          "sleuthd",
		Addr:          cfg.ListenAddr,
		BufferSize:    cfg.BufferSize,
		FrameMultiple: cfg.FrameMultiple,
		PollTimeout:   cfg.PollTimeout,
		MaxQueue:      cfg.MaxQueue,
		Handler:       router,
		Logger:        log,
		Metrics:       m,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})

	if cfg.MetricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", logger.Field{Key: "addr", Value: cfg.MetricsAddr})
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if cfg.DiscoveryAddr != "" {
		announcer, err := newAnnouncer(ctx, cfg, srv, dir, log)
		if err != nil {
			log.Warn("LAN announcements disabled", logger.Err(err))
		} else {
			g.Go(func() error {
				defer announcer.Conn.Close()
				return announcer.Run(ctx)
			})
		}
	}

	return g.Wait()
}

// newCatalog builds the content provider behind the listing cache: redis
// when configured, otherwise in-process.
func newCatalog(ctx context.Context, cfg config.Server, log logger.Logger) (*catalog.Cached, func(), error) {
	source := catalog.Demo()

	if cfg.RedisAddr == "" {
		return catalog.NewCached(source, catalog.NewMemoryCache(cfg.CatalogTTL)), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	log.Info("catalog cache uses redis", logger.Field{Key: "addr", Value: cfg.RedisAddr})
	cache := catalog.NewRedisCache(client, "sleuth:catalog:", cfg.CatalogTTL)
	return catalog.NewCached(source, cache), func() { _ = client.Close() }, nil
}

func newAnnouncer(ctx context.Context, cfg config.Server, srv *server.Server, dir *lobby.Directory, log logger.Logger) (*discovery.Announcer, error) {
	target, err := net.ResolveUDPAddr("udp4", cfg.DiscoveryAddr)
	if err != nil {
		return nil, err
	}

	conn, err := discovery.ListenBroadcast(ctx, ":0")
	if err != nil {
		return nil, err
	}

	port := 0
	if tcp, ok := srv.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	return &discovery.Announcer{
		Conn:     conn,
		Target:   target,
		Interval: cfg.DiscoveryInterval,
		Port:     port,
		Source:   dir.Summaries,
		Logger:   log.With(logger.Field{Key: "component", Value: "discovery"}),
	}, nil
}
