// Command server runs the backend for shared reports and account sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/backend"
	"multisigcheck/internal/config"
	"multisigcheck/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flagSet := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "config file (JSONC)")
	addr := flagSet.String("addr", "", "listen address, overrides server.addr")
	driver := flagSet.String("driver", "", "storage driver: file or sqlite")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load("", *configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *driver != "" {
		cfg.Server.Driver = *driver
	}

	logger, err := utils.NewLogger(utils.LogOptions{Level: cfg.Log.Level, File: cfg.Log.File, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	handler, cleanup, err := buildHandler(cfg.Server, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.Server.TLSCert != ""
	if useTLS {
		cert, err := backend.CheckCertificate(cfg.Server.TLSCert, time.Now())
		if err != nil {
			return err
		}
		logger.Info("serving TLS", zap.String("subject", cert.Subject.CommonName), zap.Time("not_after", cert.NotAfter))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Server.Driver))
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildHandler derives keys from the master key, opens storage and returns
// the router along with a func releasing the storage.
func buildHandler(cfg config.ServerConfig, logger *zap.Logger) (http.Handler, func(), error) {
	master, err := backend.ReadMasterKey(cfg.MasterKey, cfg.MasterKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (generate one with genmasterkey)", err)
	}
	signingKey, err := backend.DeriveKey(master, backend.InfoSessionSigning)
	if err != nil {
		return nil, nil, err
	}
	issuer, err := auth.NewIssuer(signingKey, cfg.SessionTTL.Std(), nil)
	if err != nil {
		return nil, nil, err
	}

	var sealKey []byte
	path := cfg.DataDir
	switch cfg.Driver {
	case backend.DriverSQLite:
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		path = filepath.Join(path, "multisigcheck.db")
	default:
		if sealKey, err = backend.DeriveKey(master, backend.InfoStorageSealing); err != nil {
			return nil, nil, err
		}
	}
	storage, err := backend.OpenStorage(cfg.Driver, path, sealKey)
	if err != nil {
		return nil, nil, err
	}

	oauth := auth.NewOAuth(issuer, cfg.PublicURL, map[auth.OAuthProvider]auth.Credentials{
		auth.ProviderGoogle: {ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret},
		auth.ProviderGitHub: {ClientID: cfg.GitHub.ClientID, ClientSecret: cfg.GitHub.ClientSecret},
	})
	for _, p := range []auth.OAuthProvider{auth.ProviderGoogle, auth.ProviderGitHub} {
		if !oauth.Enabled(p) {
			logger.Info("oauth provider disabled", zap.String("provider", string(p)))
		}
	}

	cleanup := func() {
		if err := storage.Close(); err != nil {
			logger.Warn("close storage", zap.Error(err))
		}
	}
	return backend.NewServer(storage, issuer, oauth, logger).NewRouter(), cleanup, nil
}
