// Package app assembles the detector, its collaborators and the report
// destinations from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/internal/config"
	"github.com/web3ekko/flashguard/internal/service"
	"github.com/web3ekko/flashguard/internal/storage"
	"github.com/web3ekko/flashguard/pkg/cache"
	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/fetchers"
	"github.com/web3ekko/flashguard/pkg/metrics"
	"github.com/web3ekko/flashguard/pkg/sinks"
)

// App owns every long-lived component. Close releases them in reverse order.
type App struct {
	Service  *service.BlockAnalysisService
	Analyzer *detector.Analyzer
	Store    *storage.DuckDBStorage
	Metrics  *metrics.DetectorMetrics
	Registry *prometheus.Registry

	closers []func() error
	log     logrus.FieldLogger
}

// Build wires the application. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (_ *App, err error) {
	a := &App{log: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewDetectorMetrics()
	if err := a.Metrics.Register(a.Registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	provider, err := a.buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Analyzer = detector.NewAnalyzer(provider,
		detector.WithThresholds(cfg.Thresholds),
		detector.WithFailurePolicy(cfg.Policy()),
		detector.WithLookupConcurrency(cfg.LookupConcurrency),
		detector.WithLogger(log),
	)

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(a.Metrics)}

	if cfg.DuckDBPath != "none" {
		store, err := storage.NewDuckDBStorage(cfg.DuckDBPath, log)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
		opts = append(opts, service.WithStore(store))
	}

	sink, err := a.buildSinks(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sink.Len() > 0 {
		a.closers = append(a.closers, sink.Close)
		opts = append(opts, service.WithSink(sink))
	}

	a.Service = service.NewBlockAnalysisService(a.Analyzer, opts...)
	log.WithFields(logrus.Fields{
		"policy":      cfg.Policy().String(),
		"cache":       cfg.CacheType,
		"store":       a.Store != nil,
		"sinks":       sink.Len(),
		"concurrency": cfg.LookupConcurrency,
	}).Info("flashguard ready")
	return a, nil
}

func (a *App) buildProvider(ctx context.Context, cfg *config.Config) (detector.Provider, error) {
	rpc, err := fetchers.NewRPCProvider(ctx, cfg.RPCURL, cfg.RequestTimeout, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { rpc.Close(); return nil })

	var provider detector.Provider = fetchers.NewRetryingProvider(rpc, cfg.MaxRetries, cfg.RetryDelay, a.log)

	switch cfg.CacheType {
	case "memory":
		provider = fetchers.NewCachingProvider(provider, cache.NewMemoryCache(), cfg.CacheTTL, a.log)
	case "redis":
		rc := cache.NewRedisAdapterFromURL(cfg.RedisURL)
		a.closers = append(a.closers, rc.Close)
		provider = fetchers.NewCachingProvider(provider, rc, cfg.CacheTTL, a.log)
	}
	return provider, nil
}

func (a *App) buildSinks(ctx context.Context, cfg *config.Config) (*sinks.MultiSink, error) {
	var out []sinks.Sink
	closeAll := func() {
		for _, s := range out {
			_ = s.Close()
		}
	}

	if cfg.NATS.URL != "" {
		s, err := sinks.NewNATSSink(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject, a.log)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		s, err := sinks.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, nil)
		if err != nil {
			closeAll()
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.Minio.Endpoint != "" {
		s, err := sinks.NewMinioArchive(ctx, sinks.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Bucket:    cfg.Minio.Bucket,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		out = append(out, s)
	}
	return sinks.NewMultiSink(out...), nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
