package service

import (
	"context"
	"time"

	"github.com/kubev2v/transcriber/internal/provider"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	healthCheckTimeout = 5 * time.Second

	checkOK     = "ok"
	checkFailed = "unavailable"
)

type HealthReport struct {
	Status         string
	Authentication bool
	Checks         map[string]string
}

// Healthy reports whether every dependency answered.
func (h HealthReport) Healthy() bool {
	for _, v := range h.Checks {
		if v != checkOK {
			return false
		}
	}
	return true
}

type HealthService struct {
	store          store.Store
	blobs          storage.BlobStore
	provider       provider.Provider
	authentication bool
}

func NewHealthService(s store.Store, blobs storage.BlobStore, p provider.Provider, authentication bool) *HealthService {
	return &HealthService{store: s, blobs: blobs, provider: p, authentication: authentication}
}

// Check pings the database, the bucket and the provider in parallel.
func (h *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	probes := map[string]func(context.Context) error{
		"database": h.store.Ping,
		"storage":  h.blobs.Ping,
		"provider": h.provider.Ping,
	}

	results := make([]string, 0, len(probes))
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
		results = append(results, checkOK)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		probe := probes[name]
		g.Go(func() error {
			if err := probe(gctx); err != nil {
				zap.S().Named("health").Warnw("dependency check failed", "dependency", name, "error", err)
				results[i] = checkFailed
			}
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:         "running",
		Authentication: h.authentication,
		Checks:         make(map[string]string, len(names)),
	}
	for i, name := range names {
		report.Checks[name] = results[i]
	}
	if !report.Healthy() {
		report.Status = "degraded"
	}
	return report
}
