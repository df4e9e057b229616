package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/events"
	"github.com/Atomars1/stroam-mvp/internal/httpapi"
	"github.com/Atomars1/stroam-mvp/internal/hub"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/metadata"
	"github.com/Atomars1/stroam-mvp/internal/platform/config"
	"github.com/Atomars1/stroam-mvp/internal/platform/logger"
	"github.com/Atomars1/stroam-mvp/internal/platform/metrics"
	"github.com/Atomars1/stroam-mvp/internal/room"
	"github.com/Atomars1/stroam-mvp/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "stroam-server",
	Short: "Watch-party sync server: shared playback state and queue per room",
	RunE:  runServer,
}

var (
	flagEnvFile string
	flagPort    string
	flagOrigins string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	flags.StringVar(&flagPort, "port", "", "listen port (overrides PORT)")
	flags.StringVar(&flagOrigins, "allow-origins", "", "comma-separated websocket origin patterns, e.g. localhost:*")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) (err error) {
	envErr := config.Load(flagEnvFile)
	cfg := config.FromEnv()
	if flagPort != "" {
		cfg.Port = flagPort
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Debug("no env file loaded", zap.String("path", flagEnvFile))
	}

	// closers run in reverse order on exit; their errors are merged
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	log.Info("store ready", zap.String("backend", fmt.Sprintf("%T", st)))
	closers = append(closers, st.Close)

	var sink events.Sink
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		async := events.NewAsync(pub, log.Named("events"), 256)
		sink = async
		closers = append(closers, async.Close)
		log.Info("publishing room events", zap.String("exchange", cfg.AMQPExchange))
	}

	titles, closeTitles, err := buildTitles(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeTitles)

	var ids identity.Provider = identity.AnonymousProvider{}
	if cfg.JWTSecret != "" {
		ids = identity.NewJWTProvider(cfg.JWTSecret)
	}

	m := metrics.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, room.Options{
		Store:        st,
		DefaultVideo: cfg.DefaultVideo,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.RoomIdle,
		Log:          log.Named("room"),
		Events:       sink,
		Metrics:      m,
	})
	closers = append(closers, func() error { h.Shutdown(); return nil })

	var origins []string
	if flagOrigins != "" {
		origins = strings.Split(flagOrigins, ",")
	}
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Identity:       ids,
			Titles:         titles,
			Metrics:        m,
			Log:            log,
			OriginPatterns: origins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// buildTitles stacks the noembed resolver behind the in-process LRU and,
// when configured, the shared Redis cache.
func buildTitles(cfg config.Config, log *zap.Logger) (*metadata.Titles, func() error, error) {
	var resolver metadata.Resolver = metadata.NewNoEmbed()
	closeFn := func() error { return nil }

	if cfg.RedisAddr != "" {
		client := metadata.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if client == nil {
			log.Warn("redis unreachable, title cache stays in process", zap.String("addr", cfg.RedisAddr))
		} else {
			resolver = metadata.NewRedisCache(resolver, client, 24*time.Hour)
			closeFn = client.Close
		}
	}

	lru, err := metadata.NewLRUCache(resolver, cfg.TitleCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return metadata.NewTitles(lru, log.Named("titles"), cfg.ResolveTimeout), closeFn, nil
}
