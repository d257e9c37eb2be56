package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptonorm/config"
	"cryptonorm/internal/catalog"
	"cryptonorm/internal/dashboard"
	"cryptonorm/internal/exchange/registry"
	"cryptonorm/internal/metrics"
	"cryptonorm/internal/model"
	"cryptonorm/internal/stream"
	"cryptonorm/internal/subscription"
	"cryptonorm/internal/transport"
	"cryptonorm/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	exchangeName := flag.String("exchange", "", "Stream only this exchange instead of joining all of them")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Cryptonorm.Name,
		"version": cfg.Cryptonorm.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting cryptonorm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.Prometheus.Enabled {
		metrics.Serve(ctx, cfg.Metrics.Prometheus.Addr)
	}
	var sinks []logger.ReportSink
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)
		sinks = append(sinks, metrics.PublishReport)
	}
	reportInterval := cfg.Metrics.ReportInterval
	if reportInterval <= 0 && strings.ToLower(cfg.Logging.Level) == "report" {
		reportInterval = 30 * time.Second
	}
	logger.StartReport(ctx, log, reportInterval, sinks...)

	batches := make([][]subscription.Subscription, 0, len(cfg.Batches))
	var all []subscription.Subscription
	for _, b := range cfg.Batches {
		subs, err := b.Subscriptions()
		if err != nil {
			log.WithError(err).Error("invalid subscription batch")
			os.Exit(1)
		}
		batches = append(batches, subs)
		all = append(all, subs...)
	}

	if cfg.Catalog.Verify || config.IsProductionLike(config.AppEnvironment()) {
		checkCtx, checkCancel := context.WithTimeout(ctx, cfg.Catalog.Timeout)
		err := catalog.FromConfig(cfg.Catalog, cfg.Transport.UserAgent).Verify(checkCtx, all)
		checkCancel()
		if err != nil {
			log.WithError(err).Error("subscribed markets failed the catalog check")
			os.Exit(1)
		}
	}

	builder := stream.NewBuilder(
		stream.WithLogger(log),
		stream.WithRegistry(registry.New(cfg.Endpoints)),
		stream.WithDialer(transport.NewWebsocketDialer(transport.Options{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			PingInterval:     cfg.Transport.PingInterval,
			ReadTimeout:      cfg.Transport.ReadTimeout,
			WriteTimeout:     cfg.Transport.WriteTimeout,
			ReadBufferBytes:  cfg.Transport.ReadBufferBytes,
			UserAgent:        cfg.Transport.UserAgent,
		})),
		stream.WithReconnect(stream.Policy{
			Enabled:     cfg.Reconnect.Enabled,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			MinDelay:    cfg.Reconnect.MinDelay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			Factor:      cfg.Reconnect.Factor,
		}),
		stream.WithBuffers(cfg.Channels.GroupBuffer, cfg.Channels.ExchangeBuffer, cfg.Channels.JoinBuffer),
	)
	for _, subs := range batches {
		builder.Subscribe(subs...)
	}

	streams, err := builder.Init(ctx)
	if err != nil {
		log.WithError(err).Error("failed to initialise streams")
		os.Exit(1)
	}

	var handle *stream.Handle
	if *exchangeName != "" {
		id, err := model.ParseExchangeID(*exchangeName)
		if err != nil {
			log.WithError(err).Error("invalid -exchange")
			os.Exit(1)
		}
		if handle, err = streams.Select(id); err != nil {
			log.WithError(err).Error("failed to select exchange")
			os.Exit(1)
		}
	} else {
		handle = streams.Join()
	}

	metrics.StartChannelSizeMetrics(ctx, cfg.Metrics.ChannelSizeInterval, streams.Buffers()...)

	if srv := dashboard.NewServer(cfg.Dashboard, log, streams); srv != nil {
		go func() {
			if err := srv.Run(ctx, cfg.Cryptonorm.Name); err != nil {
				log.WithError(err).Error("dashboard server failed")
			}
		}()
	}

	for _, g := range streams.Groups() {
		log.WithFields(logger.Fields{
			"group":         g.ID,
			"exchange":      g.Exchange.String(),
			"url":           g.URL,
			"subscriptions": len(g.Subscriptions),
		}).Info("connection group started")
	}
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	consume(ctx, log, handle, sigChan)

	log.Info("starting graceful shutdown")
	handle.Close()
	streams.Close()
	cancel()
	log.Info("shutdown complete")
}

// consume logs every event until a signal arrives or the stream ends.
func consume(ctx context.Context, log *logger.Log, handle *stream.Handle, sigChan <-chan os.Signal) {
	events := log.WithComponent("events")
	for {
		select {
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			return
		case <-ctx.Done():
			return
		case item, ok := <-handle.C:
			if !ok {
				log.Warn("every connection group has stopped")
				return
			}
			if item.Err != nil {
				events.WithError(item.Err).Error("connection group ended")
				continue
			}
			ev := item.Event
			events.WithFields(logger.Fields{
				"exchange":      ev.Exchange.String(),
				"instrument":    ev.Instrument.String(),
				"kind":          ev.Kind.SubKindType().String(),
				"exchange_time": ev.ExchangeTime,
				"payload":       ev.Kind,
			}).Debug("market event")
		}
	}
}
