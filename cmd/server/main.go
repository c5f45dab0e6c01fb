package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/community-content-service/internal/api"
	"github.com/UkralStul/community-content-service/internal/cache"
	"github.com/UkralStul/community-content-service/internal/config"
	"github.com/UkralStul/community-content-service/internal/service"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/UkralStul/community-content-service/internal/storage/inmemory"
	"github.com/UkralStul/community-content-service/internal/storage/mongodb"
	"github.com/UkralStul/community-content-service/internal/storage/postgres"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	fmt.Printf("%s\n", color.New(color.FgHiCyan).Add(color.Bold).Sprint("Community Content Service"))
	fmt.Println("Posts, polls, events and their comment threads")
	color.HiBlack("=====================================================\n")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Str("storage", cfg.StorageType).Msg("starting server")
	store, err := openStore(cfg, level)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.StorageType).Msg("failed to open storage")
	}
	store = storage.Bounded(store, cfg.StoreTimeout)

	var counts *cache.Counts
	if cfg.CacheEnabled {
		counts, err = cache.NewCounts(cfg.CacheMaxEntries, cfg.CacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create comment count cache")
		}
	}

	relations := service.NewResolver(store, counts)
	observer := api.NewCommentObserver()
	posts := service.NewPostService(store, relations)
	comments := service.NewCommentService(store, relations, observer)

	if cfg.StorageType == config.StorageInMemory && cfg.MockData {
		// Заполним данными для тестов
		fillWithMockData(posts, comments)
	}

	// Периодическая уборка комментариев удаленных постов
	sweeper := service.NewSweeper(store, relations)
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := quartz.AddFunc(cfg.SweeperSchedule, func() {
		removed, err := sweeper.SweepOrphanComments(context.Background())
		if err != nil {
			log.Error().Err(err).Int64("removed", removed).Msg("orphan comment sweep failed")
			return
		}
		log.Info().Int64("removed", removed).Msg("orphan comment sweep finished")
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweeperSchedule).Msg("invalid sweeper schedule")
	}
	quartz.Start()

	handler := api.NewHandler(posts, comments, observer, log.Logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown не закрывает websocket-соединения
	srv.RegisterOnShutdown(handler.Close)

	go func() {
		log.Info().Msgf("listening on http://localhost:%s/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}
	<-quartz.Stop().Done()
	if err := store.Close(ctx); err != nil {
		log.Error().Err(err).Msg("failed to close storage")
	}
}

func openStore(cfg *config.Config, level zerolog.Level) (storage.Storage, error) {
	switch cfg.StorageType {
	case config.StoragePostgres:
		return postgres.New(cfg.PostgresDSN, gormLogLevel(level))
	case config.StorageMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return inmemory.New(), nil
	}
}

// gormLogLevel: SQL-логи только на уровне debug, иначе предупреждения и ошибки.
func gormLogLevel(level zerolog.Level) logger.LogLevel {
	switch {
	case level <= zerolog.DebugLevel:
		return logger.Info
	case level <= zerolog.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}
