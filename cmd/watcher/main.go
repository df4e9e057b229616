package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Atomars1/stroam-mvp/internal/client"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/platform/config"
	"github.com/Atomars1/stroam-mvp/internal/platform/logger"
)

var rootCmd = &cobra.Command{
	Use:   "stroam-watch",
	Short: "Headless viewer: joins a room and keeps a simulated player in sync",
	RunE:  runWatcher,
}

var (
	flagServer    string
	flagRoom      string
	flagUID       string
	flagName      string
	flagToken     string
	flagDuration  float64
	flagTick      time.Duration
	flagTolerance float64
	flagEnqueue   []string
	flagPlay      bool
)

func init() {
	cfg := config.FromEnv()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", "ws://localhost:8080", "server base URL")
	flags.StringVar(&flagRoom, "room", "", "room id to join (required)")
	flags.StringVar(&flagUID, "uid", "", "viewer id sent when the server accepts unsigned viewers")
	flags.StringVar(&flagName, "name", "watcher", "display name")
	flags.StringVar(&flagToken, "token", os.Getenv("STROAM_TOKEN"), "bearer token for servers with JWT_SECRET set; signed locally from JWT_SECRET when empty")
	flags.Float64Var(&flagDuration, "duration", 0, "simulated length of every video in seconds (0 never ends)")
	flags.DurationVar(&flagTick, "tick", cfg.ConvergeTick, "converge tick while playing")
	flags.Float64Var(&flagTolerance, "tolerance", cfg.DriftTolerance, "drift in seconds tolerated before a hard seek")
	flags.StringSliceVar(&flagEnqueue, "enqueue", nil, "video URLs or ids to queue after joining")
	flags.BoolVar(&flagPlay, "play", false, "publish play at the local playhead after joining")
	_ = rootCmd.MarkPersistentFlagRequired("room")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWatcher(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := wsURL(flagServer, flagRoom, flagUID, flagName)
	if err != nil {
		return err
	}
	token := flagToken
	if token == "" && cfg.JWTSecret != "" {
		uid := flagUID
		if uid == "" {
			uid = flagName
		}
		token, err = identity.NewJWTProvider(cfg.JWTSecret).Sign(identity.Viewer{UID: uid, DisplayName: flagName})
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
	}
	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dialCtx, endpoint, header, log.Named("conn"))
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("joined room", zap.String("room", flagRoom))

	player := client.NewSimPlayer(nil, flagDuration)
	session := client.NewSession(conn, player, client.ConvergerOptions{
		Tolerance: flagTolerance,
		Tick:      flagTick,
		Log:       log.Named("converge"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return player.Run(ctx, 250*time.Millisecond) })
	g.Go(func() error {
		for _, input := range flagEnqueue {
			id, err := session.Enqueue(ctx, input)
			if err != nil {
				log.Warn("enqueue failed", zap.String("input", input), zap.Error(err))
				continue
			}
			log.Info("enqueued", zap.String("input", input), zap.String("entry", id))
		}
		if flagPlay {
			// give the first snapshot a moment to arrive
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return nil
			}
			if err := session.PlayPause(ctx, true); err != nil {
				log.Warn("play failed", zap.Error(err))
			}
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-conn.Done():
			return client.ErrConnClosed
		case <-ctx.Done():
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func wsURL(base, room, uid, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("room", room)
	if uid != "" {
		q.Set("uid", uid)
	}
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
