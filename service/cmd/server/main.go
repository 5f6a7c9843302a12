// Package main starts the game server: HTTP and websocket adapters, the
// timeout escalator and the bot runner, all sharing one record store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/api"
	"github.com/jason-s-yu/influence/service/internal/auth"
	"github.com/jason-s-yu/influence/service/internal/bot"
	"github.com/jason-s-yu/influence/service/internal/cache"
	"github.com/jason-s-yu/influence/service/internal/config"
	"github.com/jason-s-yu/influence/service/internal/database"
	"github.com/jason-s-yu/influence/service/internal/game"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/jason-s-yu/influence/service/internal/timeout"
	"github.com/jason-s-yu/influence/service/internal/timeouts"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// feedBuffer is the commit buffer for the escalator and bot subscriptions.
const feedBuffer = 256

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logrus.NewEntry(log)); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

type backends struct {
	store     store.Store
	deadlines store.Deadlines
	historian cache.Publisher
	archive   game.Archiver
	close     func()
}

func open(ctx context.Context, cfg config.Config, log *logrus.Entry) (backends, error) {
	b := backends{historian: cache.Nop{}, close: func() {}}
	var (
		rdb  *redis.Client
		pool *pgxpool.Pool
	)
	closeAll := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		if pool != nil {
			pool.Close()
		}
	}

	if cfg.Store == config.StoreRedis {
		var err error
		rdb, err = store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return backends{}, err
		}
		b.historian = cache.NewRedisPublisher(rdb)
		log.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	}
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = store.DialPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return backends{}, err
		}
		results := database.NewResults(pool)
		if err := results.Migrate(ctx); err != nil {
			closeAll()
			return backends{}, err
		}
		b.archive = results
		log.Info("connected to postgres")
	}

	switch cfg.Store {
	case config.StoreRedis:
		b.store, b.deadlines = store.NewRedis(rdb), store.NewRedisDeadlines(rdb)
	case config.StorePostgres:
		if err := store.Migrate(ctx, pool); err != nil {
			closeAll()
			return backends{}, err
		}
		b.store, b.deadlines = store.NewPostgres(pool), store.NewPostgresDeadlines(pool)
	default:
		b.store, b.deadlines = store.NewMemory(), store.NewMemoryDeadlines()
	}
	b.close = closeAll
	return b, nil
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	b, err := open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	rules := engine.DefaultRules()
	rules.ResponseTimeoutSec = int(cfg.ResponseTimeout / time.Second)
	if rules.ResponseTimeoutSec == 0 {
		log.Warn("response timeout is 0, new games run without deadlines")
	}
	svc := game.New(game.Options{
		Store:          b.store,
		Deadlines:      b.deadlines,
		Historian:      b.historian,
		Archive:        b.archive,
		Log:            log,
		Rules:          rules,
		MaxCASAttempts: cfg.MaxCASAttempts,
	})

	var tokens *auth.Tokens
	if cfg.TrustedCallerSecret != "" {
		if tokens, err = auth.NewTokens(cfg.TrustedCallerSecret); err != nil {
			return err
		}
	} else {
		log.Warn("no trusted caller secret, internal routes disabled")
	}

	escalator := timeout.New(svc, b.deadlines, log)
	runner := bot.New(svc, b.store, cfg.BotThinkDelay, log)
	escFeed, escDone := svc.Subscribe(feedBuffer)
	defer escDone()
	botFeed, botDone := svc.Subscribe(feedBuffer)
	defer botDone()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(svc, tokens, log).Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return escalator.Run(ctx, escFeed) })
	g.Go(func() error { return escalator.RunSweeper(ctx, cfg.EscalatorSweepInterval) })
	g.Go(func() error { return runner.Run(ctx, botFeed) })
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "store": cfg.Store}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
