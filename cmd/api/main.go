package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-intake/internal/api/http"
	"github.com/spec-kit/ticket-intake/internal/api/http/handlers"
	"github.com/spec-kit/ticket-intake/internal/config"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/extractor"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/internal/repository"
	"github.com/spec-kit/ticket-intake/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	ticketRepo, messageRepo := buildRepositories(pg, logger)

	dispatcher := events.NewInMemoryDispatcher()
	if redis.Ping(ctx) == nil {
		events.NewRedisRelay(redis.Client, cfg.Redis.EventChannel, logger).Attach(dispatcher)
	}

	strategy := buildStrategy(cfg.Extractor, logger)

	conversationService := service.NewConversationService(service.ConversationDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Strategy:    strategy,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
	})

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(pg, redis),
		Chat:    handlers.NewChatHandler(conversationService),
		Tickets: handlers.NewTicketsHandler(ticketService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func buildRepositories(pg *persistence.Postgres, logger *zap.Logger) (repository.TicketRepository, repository.MessageRepository) {
	if pool := pg.PoolHandle(); pool != nil {
		return repository.NewTicketRepository(pool), repository.NewMessageRepository(pool)
	}
	logger.Warn("running with in-memory storage; data will not survive restarts")
	store := repository.NewMemoryStore()
	return repository.NewMemoryTicketRepository(store), repository.NewMemoryMessageRepository(store)
}

func buildStrategy(cfg config.ExtractorConfig, logger *zap.Logger) extractor.Strategy {
	switch cfg.Strategy {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("EXTRACTOR_OPENAI_API_KEY not set; falling back to deterministic strategy")
			return extractor.NewDeterministic()
		}
		return extractor.NewOpenAI(cfg.OpenAIAPIKey,
			extractor.WithBaseURL(cfg.OpenAIBaseURL),
			extractor.WithModel(cfg.OpenAIModel),
			extractor.WithTimeout(cfg.Timeout()),
		)
	default:
		return extractor.NewDeterministic()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
