package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
	_ "modernc.org/sqlite"

	"autopost/internal/api"
	"autopost/internal/config"
	"autopost/internal/generate"
	"autopost/internal/publisher"
	"autopost/internal/runner"
	"autopost/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "autopost.yaml", "config file path")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		noCycle = flag.Bool("no-cycle", false, "disable the internal cycle ticker (external cron triggers /api/run-due)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	st, closeDB, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer closeDB()

	chain := buildChain(cfg)
	pub, err := buildPublisher(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build publisher")
	}

	callTimeout, _ := cfg.CallTimeout()
	run := runner.New(st, chain, pub, runner.WithCallTimeout(callTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*noCycle {
		interval, _ := cfg.Interval()
		svc := runner.NewService(run, interval)
		go svc.Start(ctx)
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.NewServer(st, run, cfg.Runner.Token)}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if cfg.Logging.File.Path != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, rotating)
	}
	log.Logger = log.Output(w)
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.Database.DSN)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(1) // SQLite single writer
		if err := store.EnsureSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewSQLite(db), func() { db.Close() }, nil
	case "postgres":
		db, err := sqlx.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsurePostgresSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPostgres(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func buildChain(cfg *config.Config) *generate.Chain {
	var backends []generate.Backend
	if cfg.Generation.Gemini.APIKey != "" {
		backends = append(backends, generate.NewGemini(cfg.Generation.Gemini.APIKey, cfg.Generation.Gemini.Model))
	} else {
		log.Warn().Msg("no Gemini key configured, skipping primary backend")
	}
	ring := generate.NewKeyRing(cfg.Generation.HuggingFace.APIKeys)
	if ring.Len() > 0 {
		backends = append(backends, generate.NewHuggingFace(ring, cfg.Generation.HuggingFace.Model))
	} else {
		log.Warn().Msg("no HuggingFace keys configured, skipping secondary backend")
	}
	backends = append(backends, generate.Template{})

	limiter := rate.NewLimiter(rate.Limit(cfg.Runner.RatePerSec), cfg.Runner.RatePerSec)
	return generate.NewChain(limiter, backends...)
}

func buildPublisher(cfg *config.Config) (publisher.Publisher, error) {
	switch cfg.Publisher.Kind {
	case "bridge":
		timeout, err := cfg.CallTimeout()
		if err != nil {
			return nil, err
		}
		return publisher.NewBridge(cfg.Publisher.Bridge.URL, timeout), nil
	case "telegram":
		return publisher.NewTelegram(cfg.Publisher.Telegram.Token, cfg.Publisher.Telegram.ChatID)
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Publisher.Kind)
	}
}
