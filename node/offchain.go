// Package node wires configuration, clients and services into the two things
// hcnode runs: the off-chain handler server and the demo operation driver.
package node

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/getsentry/sentry-go"
	gocron "github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/AvaProtocol/hybrid-compute/core/config"
	"github.com/AvaProtocol/hybrid-compute/metrics"
	"github.com/AvaProtocol/hybrid-compute/offchain"
	"github.com/AvaProtocol/hybrid-compute/offchain/handlers"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
	"github.com/AvaProtocol/hybrid-compute/pkg/timekeeper"
	"github.com/AvaProtocol/hybrid-compute/version"
)

const uptimeInterval = 5 * time.Second

// Offchain is the off-chain handler service: a sealed registry served over
// JSON-RPC with metrics and a health check.
type Offchain struct {
	config   *config.Config
	logger   logger.Logger
	registry *offchain.Registry
	server   *offchain.Server

	promReg *prometheus.Registry
	metrics *metrics.HybridComputeMetrics
	uptime  *timekeeper.Elapsing
	sentry  bool
}

// RunOffchain serves the handlers configured at configPath until SIGINT or
// SIGTERM.
func RunOffchain(configPath string) error {
	nodeConfig, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s, make sure it exists and is valid yaml: %w", configPath, err)
	}

	svc, err := NewOffchain(nodeConfig)
	if err != nil {
		return fmt.Errorf("cannot initialize off-chain server from config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		svc.logger.Info("shutting down...")
		cancel()
	}()

	return svc.Start(ctx)
}

// NewOffchain registers addsub2 and every configured remote handler. The
// registry is sealed when the server starts.
func NewOffchain(c *config.Config) (*Offchain, error) {
	log := logger.EnsureLogger(c.Logger)

	policy, err := offchain.ParseDuplicatePolicy(c.Offchain.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	registry := offchain.NewRegistry(policy, log)
	remotes := lo.Map(c.Offchain.Handlers, func(h config.RemoteHandler, _ int) handlers.RemoteSpec {
		return handlers.RemoteSpec{
			Signature: h.Signature,
			Params:    h.Params,
			URL:       h.URL,
			Timeout:   h.Timeout,
		}
	})
	if err := handlers.Register(registry, remotes); err != nil {
		return nil, err
	}

	svc := &Offchain{
		config:   c,
		logger:   log,
		registry: registry,
		promReg:  prometheus.NewRegistry(),
		uptime:   timekeeper.NewPausedElapsing(),
	}
	svc.metrics = metrics.NewHybridComputeMetrics(svc.promReg)

	var opts []offchain.ServerOption
	if c.Offchain.SentryDsn != "" {
		if err := initSentry(c); err != nil {
			log.Error("sentry initialization failed", "error", err)
		} else {
			svc.sentry = true
			opts = append(opts, offchain.WithSentry())
		}
	}

	dispatcher := offchain.NewDispatcher(registry, svc.metrics, log)
	svc.server = offchain.NewServer(dispatcher, svc.promReg, log, opts...)

	for _, entry := range registry.List() {
		log.Info("registered handler", "selector", entry.Selector.Hex(), "signature", entry.Signature)
	}

	return svc, nil
}

func initSentry(c *config.Config) error {
	env := "production"
	if c.Environment == sdklogging.Development {
		env = "development"
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              c.Offchain.SentryDsn,
		ServerName:       c.Offchain.ServerName,
		Environment:      env,
		Release:          fmt.Sprintf("hcnode@%s+%s", version.Get(), version.GetRevision()),
		AttachStacktrace: true,
		TracesSampleRate: 1.0,
	})
}

func (o *Offchain) Registry() *offchain.Registry {
	return o.registry
}

// Handler serves the same routes as Start, without a listener
func (o *Offchain) Handler() http.Handler {
	return o.server.Handler()
}

// Start serves on the configured address until ctx is done. Uptime is
// reported every few seconds while serving.
func (o *Offchain) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(uptimeInterval),
		gocron.NewTask(o.reportUptime),
	)
	if err != nil {
		o.logger.Error("failed to create uptime job", "error", err)
	}
	scheduler.Start()

	if err := o.uptime.Resume(); err != nil {
		o.logger.Warn("uptime clock already running", "error", err)
	}

	err = o.server.Start(ctx, o.config.Offchain.ListenAddress)

	_ = o.uptime.Pause()
	o.reportUptime()
	if shutdownErr := scheduler.Shutdown(); shutdownErr != nil {
		o.logger.Warn("scheduler shutdown failed", "error", shutdownErr)
	}
	if o.sentry {
		sentry.Flush(2 * time.Second)
	}

	return err
}

func (o *Offchain) reportUptime() {
	o.metrics.AddUptime(float64(o.uptime.Report().Milliseconds()))
}
