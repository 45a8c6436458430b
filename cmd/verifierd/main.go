// cmd/verifierd/main.go
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/persona-compat/browserid-go/internal/config"
	"github.com/persona-compat/browserid-go/internal/idp"
	"github.com/persona-compat/browserid-go/internal/key"
	"github.com/persona-compat/browserid-go/internal/server"
	"github.com/persona-compat/browserid-go/internal/storage"
	"github.com/persona-compat/browserid-go/internal/verify"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	keys, err := loadOrBootstrapKeys(cfg, logger)
	if err != nil {
		logger.Error("keystore error", "error", err)
		os.Exit(1)
	}
	logger.Info("local key loaded", "fingerprint", key.Fingerprint(keys.PublicKey()), "hostname", cfg.Hostname)

	shim, err := idp.LoadShimTable(cfg.ShimEntries, cfg.ShimDir)
	if err != nil {
		logger.Error("shim table error", "error", err)
		os.Exit(1)
	}
	if len(shim) > 0 {
		logger.Warn("support document shims active; network discovery is bypassed for shimmed domains", "domains", len(shim))
	}

	store, err := newAuditStore(cfg)
	if err != nil {
		logger.Error("audit store error", "error", err)
		os.Exit(1)
	}

	resolver := idp.NewResolver(idp.Config{
		Hostname:           cfg.Hostname,
		AuthenticationPath: cfg.AuthPath,
		ProvisioningPath:   cfg.ProvPath,
	}, keys.PublicKey(), idp.NewHTTPFetcher(cfg.FetchTimeout), shim)

	verifier := verify.New(resolver, cfg.Hostname, cfg.MasterIdP)
	handler := server.New(cfg, verifier, keys, store, logger)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           server.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("verifierd starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("shutdown complete")
	}
}

// loadOrBootstrapKeys reads the on-disk key pair, generating and persisting
// one when the key directory is empty.
func loadOrBootstrapKeys(cfg config.Config, logger *slog.Logger) (idp.KeyStore, error) {
	keys, err := idp.LoadFileKeyStore(cfg.KeyDir, cfg.KeyName)
	if err == nil {
		return keys, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	logger.Info("no key pair on disk, generating", "dir", cfg.KeyDir, "name", cfg.KeyName)
	return idp.BootstrapFileKeyStore(cfg.KeyDir, cfg.KeyName, func() (key.SecretKey, error) {
		return key.GenerateRSA(256)
	})
}

func newAuditStore(cfg config.Config) (storage.AuditStore, error) {
	if cfg.AuditBackend == "postgres" {
		return storage.NewPostgres(cfg.DatabaseDSN)
	}
	return storage.NewMemory(), nil
}
