package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiserver "github.com/kubev2v/transcriber/internal/api_server"
	"github.com/kubev2v/transcriber/internal/auth"
	"github.com/kubev2v/transcriber/internal/config"
	"github.com/kubev2v/transcriber/internal/dispatcher"
	"github.com/kubev2v/transcriber/internal/events"
	handlers "github.com/kubev2v/transcriber/internal/handlers/v1alpha1"
	"github.com/kubev2v/transcriber/internal/poller"
	"github.com/kubev2v/transcriber/internal/provider"
	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/pkg/backoff"
	"github.com/kubev2v/transcriber/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dispatcherCloseTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transcriber api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		defer setupLogger(cfg)()

		zap.S().Infow("Starting API service", "version", version)
		defer zap.S().Info("API service stopped")

		policy := backoff.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.Backoff...)
		if err := policy.Validate(); err != nil {
			zap.S().Fatalw("invalid retry configuration", "error", err)
		}

		authenticator, err := auth.NewAuthenticator(cfg.Service.Auth)
		if err != nil {
			zap.S().Fatalw("creating authenticator", "error", err)
		}

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		blobs, err := storage.NewMinioStore(
			storage.WithEndpoint(cfg.S3.Endpoint),
			storage.WithBucket(cfg.S3.Bucket),
			storage.WithRegion(cfg.S3.Region),
			storage.WithAccessKey(cfg.S3.AccessKey),
			storage.WithSecretKey(cfg.S3.SecretKey),
			storage.WithSSL(cfg.S3.UseSSL),
		)
		if err != nil {
			zap.S().Fatalw("creating blob store", "error", err)
		}

		if cfg.Provider.ApiKey == "" {
			zap.S().Warn("ASSEMBLYAI_API_KEY is not set, transcriptions will be rejected by the provider")
		}
		transcriber := provider.NewAssemblyAIClient(cfg.Provider.BaseUrl, cfg.Provider.ApiKey, cfg.Provider.Timeout)

		if !cfg.Webhook.Configured() {
			zap.S().Warn("webhook is not configured, completed transcriptions are only picked up by the poller")
		}

		d := dispatcher.NewMemory(dispatcher.Config{
			Workers:    cfg.Dispatcher.Workers,
			BufferSize: cfg.Dispatcher.BufferSize,
		})
		reconciler := service.NewReconciler(s, transcriber, blobs, policy)

		limits := service.Limits{
			MaxFileSize:     cfg.Limits.MaxFileSize,
			AllowedFormats:  cfg.Limits.AllowedFormats,
			SourceURLExpiry: cfg.Limits.SourceURLExpiry,
			ResultURLExpiry: cfg.Limits.ResultURLExpiry,
		}
		transcriptions := service.NewTranscriptionService(s, blobs, transcriber, service.NewAdmission(s, cfg.Limits.MaxConcurrentJobs), limits, cfg.Webhook.CallbackURL())

		if cfg.Events.Enabled {
			producer := events.NewEventProducer(&events.StdoutWriter{}, events.WithOutputTopic(cfg.Events.Topic))
			defer producer.Close()

			reconciler.WithEvents(producer)
			transcriptions.WithEvents(producer)
		}

		h := handlers.NewServiceHandler(
			transcriptions,
			service.NewWebhookService(s, reconciler, d, cfg.Webhook.Secret),
			service.NewHealthService(s, blobs, transcriber, auth.IsEnabled(authenticator)),
			cfg.Limits.MaxFileSize,
			version,
		)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		var p *poller.Poller
		if cfg.Polling.Enabled {
			p = poller.New(s, reconciler, poller.Config{
				Interval:          cfg.Polling.Interval,
				StaleThreshold:    cfg.Polling.StaleThreshold,
				JobTimeout:        cfg.Polling.JobTimeout,
				WebhookConfigured: cfg.Webhook.Configured(),
			})
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			return apiserver.New(cfg, h, authenticator, listener).Run(gctx)
		})
		g.Go(func() error {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(gctx)
		})

		if p != nil {
			// the poller is stopped explicitly so a running cycle gets its grace period
			p.Start(context.WithoutCancel(ctx))
		}

		if err := g.Wait(); err != nil {
			zap.S().Errorw("server stopped", "error", err)
		}

		if p != nil {
			if err := p.Stop(cfg.Polling.StopTimeout); err != nil {
				zap.S().Warnw("poller did not stop cleanly", "error", err)
			}
		}

		closeCtx, closeCancel := context.WithTimeout(context.Background(), dispatcherCloseTimeout)
		defer closeCancel()
		if err := d.Close(closeCtx); err != nil {
			zap.S().Warnw("dispatcher did not drain", "error", err)
		}

		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
