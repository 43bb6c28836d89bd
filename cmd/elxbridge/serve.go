package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joshp123/electrolux-bridge/internal/config"
	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/host"
	"github.com/joshp123/electrolux-bridge/internal/hub"
	"github.com/joshp123/electrolux-bridge/internal/logging"
	"github.com/joshp123/electrolux-bridge/internal/mqtt"
	"github.com/joshp123/electrolux-bridge/internal/platform"
	"github.com/joshp123/electrolux-bridge/internal/rate"
	"github.com/joshp123/electrolux-bridge/internal/rpc"
	"github.com/joshp123/electrolux-bridge/internal/server"
	"github.com/joshp123/electrolux-bridge/internal/settings"
	"github.com/joshp123/electrolux-bridge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the appliances and serve them over HTTP, gRPC and MQTT",

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("api.base_url", "settings.path")
		if err != nil {
			return err
		}
		return doServe(cfg)
	},
}

func init() {
	serveCmd.Flags().String("http-addr", config.DefaultHTTPAddr, "HTTP listen address, empty to disable")
	serveCmd.Flags().String("grpc-addr", config.DefaultGRPCAddr, "gRPC listen address, empty to disable")
	serveCmd.Flags().String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	serveCmd.Flags().Int("rate-per-minute", 0, "maximum vendor API requests per minute, 0 for unlimited")
	serveCmd.Flags().Int("rate-per-day", 0, "maximum vendor API requests per day, 0 for unlimited")
	serveCmd.Flags().Duration("graceful-timeout", 15*time.Second, "duration to wait for servers to finish, eg. 1m or 10s")

	errPanic(v.BindPFlag("server.http_addr", serveCmd.Flags().Lookup("http-addr")))
	errPanic(v.BindPFlag("server.grpc_addr", serveCmd.Flags().Lookup("grpc-addr")))
	errPanic(v.BindPFlag("mqtt.broker", serveCmd.Flags().Lookup("mqtt-broker")))
	errPanic(v.BindPFlag("rate.per_minute", serveCmd.Flags().Lookup("rate-per-minute")))
	errPanic(v.BindPFlag("rate.per_day", serveCmd.Flags().Lookup("rate-per-day")))
	errPanic(v.BindPFlag("server.graceful_timeout", serveCmd.Flags().Lookup("graceful-timeout")))

	rootCmd.AddCommand(serveCmd)
}

// buildStore returns the local record file, mirrored to object storage when
// a bucket is configured.
func buildStore(cfg config.SettingsConfig) (settings.Store, error) {
	local := settings.NewFileStore(cfg.Path)
	if !cfg.Blob.Enabled() {
		return local, nil
	}
	blob, err := settings.NewBlobStore(cfg.Blob)
	if err != nil {
		return nil, err
	}
	return &settings.Mirror{Primary: local, Secondary: blob}, nil
}

func doServe(cfg config.Config) error {
	log := logging.Logger(nil)
	log.WithField("version", version.Version).Info("starting elxbridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg.Settings)
	if err != nil {
		return err
	}

	registry := host.NewRegistry(host.LogSink{})
	session, err := hub.Start(ctx, hub.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		Transport: rate.Wrap(cfg.Rate, electrolux.NewTransport()),
		Store:     store,
		Notifier:  registry,
		Scheduler: host.TickerScheduler{},
	})
	if err != nil {
		return err
	}
	defer session.Close()

	entities, err := platform.Setup(ctx, session, registry, platform.Defaults())
	if err != nil {
		return err
	}
	registry.Add(entities...)
	log.WithField("entities", len(entities)).Info("entities ready")

	if cfg.MQTT.Enabled() {
		sink, err := mqtt.Connect(cfg.MQTT, registry, func() {
			registry.PublishAll(ctx)
		})
		if err != nil {
			return err
		}
		defer sink.Close()
		registry.AddSink(ctx, sink)
	}

	health := func() (platform.HealthStatus, string) {
		return platform.Health(session)
	}

	metrics := server.MetricsRegistry(
		electrolux.MetricsCollectors(),
		hub.MetricsCollectors(),
		settings.MetricsCollectors(),
		rate.MetricsCollectors(),
		[]prometheus.Collector{
			host.NewEntityCollector(registry),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "elxbridge_build_info",
				Help:        "Build information",
				ConstLabels: prometheus.Labels{"version": version.Version},
			}, func() float64 { return 1 }),
		},
	)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	var httpServer *server.HTTPServer
	if cfg.Server.HTTPAddr != "" {
		httpServer = server.NewHTTPServer(cfg.Server.HTTPAddr, server.NewRouter(server.Deps{
			Appliances:  session,
			Entities:    registry,
			Health:      health,
			Metrics:     metrics,
			CORSOrigins: cfg.Server.CORSOrigins,
		}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("serving HTTP on %s", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil {
				errs <- err
			}
		}()
	}

	var grpcServer *server.GRPCServer
	if cfg.Server.GRPCAddr != "" {
		grpcServer, err = server.NewGRPCServer(cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		rpc.Register(grpcServer.Server, rpc.NewService(session, registry, health))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("serving gRPC on %s", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(); err != nil {
				errs <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errs:
		log.WithError(err).Error("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if httpServer != nil {
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			log.WithError(serr).Error("shutting down HTTP")
		}
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	wg.Wait()
	log.Info("exiting")
	return err
}
