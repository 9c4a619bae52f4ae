package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/order-confirm/internal/api"
	"github.com/LeventeLantos/order-confirm/internal/audit"
	"github.com/LeventeLantos/order-confirm/internal/cache"
	"github.com/LeventeLantos/order-confirm/internal/client"
	"github.com/LeventeLantos/order-confirm/internal/config"
	"github.com/LeventeLantos/order-confirm/internal/logger"
	"github.com/LeventeLantos/order-confirm/internal/repo"
	"github.com/LeventeLantos/order-confirm/internal/scheduler"
	"github.com/LeventeLantos/order-confirm/internal/service"
)

const shutdownTimeout = 15 * time.Second

type options struct {
	envFile   string
	sweepOnce bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("messaging", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	fs.BoolVar(&opts.sweepOnce, "sweep-once", false, "run a single auto-confirm sweep and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, errors.New("unexpected arguments: " + fs.Arg(0))
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	_ = godotenv.Load(opts.envFile)

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, zl); err != nil {
		zl.Fatal("messaging app exited with error", zap.Error(err))
	}
}

type components struct {
	sweeper *service.AutoConfirmer
	handler *api.Handler
	sched   *scheduler.Scheduler
}

func build(cfg *config.Config, db *sql.DB, sent cache.SentCache, zl *zap.Logger) (*components, error) {
	orders := repo.NewPostgresOrderRepo(db)
	logs := repo.NewPostgresWhatsAppLogRepo(db)
	auditLog := audit.New(logs, zl)

	wa := client.NewWhatsAppClient(client.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		Timeout:       cfg.WhatsApp.Timeout,
	}, zl)

	dispatcher := service.NewDispatcher(wa, auditLog, cfg.AutoConfirm.DryRun)
	sweeper := service.NewAutoConfirmer(orders, dispatcher, auditLog, sent, cfg.AutoConfirm, zl)

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) {
		if _, err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("scheduled auto-confirm sweep failed", zap.Error(err))
		}
	}, zl)
	if err != nil {
		return nil, err
	}

	h := api.NewHandler(api.Deps{
		Scheduler: sched,
		Sweeper:   sweeper,
		Webhook:   service.NewInbound(orders, auditLog, service.DefaultClassifier(), cfg.WhatsApp.VerifyToken, zl),
		Tester:    service.NewTestSender(dispatcher, cfg.AutoConfirm.TemplateName),
		Logs:      logs,
		Sent:      sent,
		Log:       zl,
	})

	return &components{sweeper: sweeper, handler: h, sched: sched}, nil
}

func run(ctx context.Context, cfg *config.Config, opts options, zl *zap.Logger) error {
	zl.Info("messaging app starting",
		zap.String("addr", cfg.Server.Address),
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Bool("auto_confirm", cfg.AutoConfirm.Enabled),
		zap.Bool("dry_run", cfg.AutoConfirm.DryRun),
		zap.Bool("redis", cfg.Redis.Enabled),
	)
	if !cfg.WhatsApp.Configured() && !cfg.AutoConfirm.DryRun {
		zl.Warn("whatsapp credentials missing; live sends will fail until configured")
	}
	if cfg.WhatsApp.VerifyToken == "" {
		zl.Warn("WHATSAPP_VERIFY_TOKEN not set; webhook verification will always fail")
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	var sent cache.SentCache = cache.Nop{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(pingCtx).Err(); err != nil {
			zl.Warn("redis unavailable; sent-cache disabled", zap.Error(err))
		} else {
			sent = cache.NewRedisCache(rdb, cfg.Redis.TTL)
		}
	}

	c, err := build(cfg, db, sent, zl)
	if err != nil {
		return err
	}

	if opts.sweepOnce {
		res, err := c.sweeper.Run(ctx)
		zl.Info("single sweep finished", zap.Any("result", res))
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(c.handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.AutoStart {
		c.sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		c.sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
