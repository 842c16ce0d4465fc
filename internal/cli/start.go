package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/bucketd/bucketd/internal/bucket"
	"github.com/bucketd/bucketd/internal/config"
	"github.com/bucketd/bucketd/internal/notify"
	"github.com/bucketd/bucketd/internal/server"
	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bucketd server",
	Long: `Start the bucketd server. Buckets without an object store behind them
store files under storage.local_dest; buckets with s3_bucket configured
mirror uploads into the object store.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().Int("port", 0, "Server port (default 8090)")
	startCmd.Flags().String("host", "", "Server host (default 0.0.0.0)")
	startCmd.Flags().String("local-dest", "", "Local storage directory")
	startCmd.Flags().String("config", "", "Path to bucketd.toml config file")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Collect CLI flag overrides.
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		flags["port"] = fmt.Sprintf("%d", v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		flags["host"] = v
	}
	if v, _ := cmd.Flags().GetString("local-dest"); v != "" {
		flags["local-dest"] = v
	}

	configPath, _ := cmd.Flags().GetString("config")

	// Load config (defaults → file → env → flags).
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting bucketd",
		"version", buildVersion,
		"address", cfg.Address(),
	)

	// Auto-generate config file if it doesn't exist.
	if configPath == "" {
		if _, err := os.Stat("bucketd.toml"); os.IsNotExist(err) {
			if err := config.GenerateDefault("bucketd.toml"); err != nil {
				logger.Warn("could not generate default bucketd.toml", "error", err)
			} else {
				logger.Info("generated default bucketd.toml")
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the object store when configured. A failure here is not
	// fatal; affected buckets come up local-only.
	var s3Client *minio.Client
	if cfg.S3.Endpoint != "" {
		s3Client, err = bucket.NewS3Client(bucket.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			logger.Warn("object store unavailable, cloud buckets degrade to local storage", "error", err)
			s3Client = nil
		} else {
			logger.Info("object store configured", "endpoint", cfg.S3.Endpoint)
		}
	}

	signKey := cfg.Storage.SignKey
	if signKey == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generating sign key: %w", err)
		}
		signKey = hex.EncodeToString(b)
		logger.Info("generated random sign key (signed URLs will not survive restarts)")
	}
	signer := bucket.NewURLSigner(signKey)

	registry, err := bucket.NewRegistry(ctx, bucket.RegistryConfig{
		Root:     cfg.Storage.LocalDest,
		S3Client: s3Client,
		Signer:   signer,
		Buckets:  bucketConfigs(cfg),
	}, logger)
	if err != nil {
		return fmt.Errorf("building bucket registry: %w", err)
	}
	logger.Info("buckets ready", "buckets", registry.Names())

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing notify backend: %w", err)
	}
	defer notifier.Close()

	srv := server.New(cfg, logger, registry, signer, notifier)

	// Graceful shutdown on SIGTERM/SIGINT.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}

// bucketConfigs resolves the per-bucket sections against the global
// storage settings, in deterministic name order.
func bucketConfigs(cfg *config.Config) []bucket.BucketConfig {
	names := make([]string, 0, len(cfg.Buckets))
	for name := range cfg.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bucket.BucketConfig, 0, len(names))
	for _, name := range names {
		bc := cfg.Buckets[name]

		resolve := cfg.Storage.ResolveConflicts
		if bc.ResolveConflicts != nil {
			resolve = *bc.ResolveConflicts
		}
		expiry := cfg.Storage.SignedURLExpiry
		if bc.SignedURLExpiry > 0 {
			expiry = bc.SignedURLExpiry
		}
		retry := cfg.Storage.Retry
		if bc.Retry != nil {
			retry = *bc.Retry
		}

		out = append(out, bucket.BucketConfig{
			Name:             name,
			Extensions:       bc.Extensions,
			Allow:            bc.Allow,
			Deny:             bc.Deny,
			ResolveConflicts: resolve,
			S3Bucket:         bc.S3Bucket,
			DeleteLocal:      bc.DeleteLocalOrDefault(),
			Private:          bc.Private,
			BaseURL:          bc.BaseURL,
			SignedExpiry:     time.Duration(expiry) * time.Second,
			Retry:            retryPolicy(retry),
		})
	}
	return out
}

func retryPolicy(rc config.RetryConfig) bucket.RetryPolicy {
	return bucket.RetryPolicy{
		Attempts:   rc.Attempts,
		WaitMin:    time.Duration(rc.WaitMinMS) * time.Millisecond,
		WaitMax:    time.Duration(rc.WaitMaxMS) * time.Millisecond,
		Multiplier: rc.Multiplier,
	}
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Notifier, error) {
	switch cfg.Notify.Backend {
	case "webhook":
		b := notify.NewWebhookBackend(notify.WebhookConfig{
			URL:     cfg.Notify.Webhook.URL,
			Secret:  cfg.Notify.Webhook.Secret,
			Timeout: time.Duration(cfg.Notify.Webhook.Timeout) * time.Second,
		})
		return notify.New(logger, b), nil
	case "nats":
		b, err := notify.NewNATSBackend(cfg.Notify.NATS.URL, cfg.Notify.NATS.Subject)
		if err != nil {
			return nil, err
		}
		return notify.New(logger, b), nil
	case "redis":
		b := notify.NewRedisBackend(notify.RedisConfig{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
			Channel:  cfg.Notify.Redis.Channel,
		})
		return notify.New(logger, b), nil
	default:
		return notify.New(logger), nil
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
