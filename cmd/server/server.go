package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flockhq/flock-server/internal/config"
	"github.com/flockhq/flock-server/internal/domain/admincmd"
	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/flow"
	"github.com/flockhq/flock-server/internal/domain/intent"
	"github.com/flockhq/flock-server/internal/fanout"
	"github.com/flockhq/flock-server/internal/infrastructure/auth"
	"github.com/flockhq/flock-server/internal/infrastructure/bus"
	"github.com/flockhq/flock-server/internal/infrastructure/classifier"
	"github.com/flockhq/flock-server/internal/infrastructure/crontab"
	"github.com/flockhq/flock-server/internal/infrastructure/database"
	"github.com/flockhq/flock-server/internal/infrastructure/gateway"
	"github.com/flockhq/flock-server/internal/infrastructure/logger"
	"github.com/flockhq/flock-server/internal/infrastructure/observability"
	conversationrepo "github.com/flockhq/flock-server/internal/infrastructure/repository/conversation"
	operatorrepo "github.com/flockhq/flock-server/internal/infrastructure/repository/operator"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/handlers"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	redisBus, err := bus.New(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer redisBus.Close()

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	hub := fanout.NewHub(redisBus, log)

	conversationRepository := conversationrepo.NewRepository(db)
	messageRepository := conversationrepo.NewMessageRepository(db)
	operatorRepository := operatorrepo.NewRepository(db)

	gatewayClient := gateway.NewClient(cfg.ChatGatewayURL, cfg.ChatGatewayToken, log)
	classifierClient := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout, log)

	conversationService := conversation.NewService(
		conversationRepository,
		messageRepository,
		operatorRepository,
		gatewayClient,
		hub,
		conversation.Config{
			HandoffTimeout: cfg.HandoffTimeout,
			FlowTimeout:    cfg.FlowTimeout,
		},
		log,
	)

	flowEngine := flow.NewEngine(conversationRepository, conversationService, cfg.FlowTimeout, log)
	if err := registerFlows(flowEngine, conversationService); err != nil {
		log.Fatal().Err(err).Msg("register flows")
	}

	adminParser := admincmd.NewParser(conversationService, log)

	router := intent.NewRouter(
		conversationService,
		flowEngine,
		adminParser,
		operatorRepository,
		defaultPatterns(),
		classifierClient,
		log,
	)
	registerIntents(router, conversationService, flowEngine)

	reaper := crontab.New(conversationService, redisBus, cfg.ReaperIntervalMins, log)

	handlerProvider := handlers.NewProvider(conversationService, operatorRepository, router, hub, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, authValidator)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return httpServer.Run(groupCtx) })
	group.Go(func() error { return hub.RunBridge(groupCtx) })
	group.Go(func() error { return reaper.Run(groupCtx) })

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
