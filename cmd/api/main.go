package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-core/internal/api/http"
	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/queue"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/scoring"
	"github.com/spec-kit/helpdesk-core/internal/service"
	"github.com/spec-kit/helpdesk-core/internal/sla"
	"github.com/spec-kit/helpdesk-core/internal/worker"
)

// defaultEscalationRules are attached to entries enqueued at ticket
// creation. Tenants without bespoke rules still escalate on breached
// deadlines and stale unassigned work.
var defaultEscalationRules = []domain.EscalationRule{
	{Kind: domain.EscalateSLABreach},
	{Kind: domain.EscalateNoAssignment, Hours: 24},
	{Kind: domain.EscalateTimeSinceUpdate, Hours: 72},
}

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

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	workflowRepo := repository.NewWorkflowRepository(pool)
	queueRepo := repository.NewQueueEntryRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)

	clk := clock.System()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	scorer := scoring.NewScorer(clk)
	evaluator := sla.NewEvaluator(clk)
	resolver := service.NewPolicyResolver(policyRepo, clk)

	queueManager := queue.NewManager(queue.Dependencies{
		Store:      queueRepo,
		Tickets:    ticketRepo,
		Policies:   resolver,
		Scorer:     scorer,
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
		WarningPct: cfg.SLA.WarningPct,
	})

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		CommentRepo:     commentRepo,
		WorkflowRepo:    workflowRepo,
		PolicyResolver:  resolver,
		Queue:           queueManager,
		Evaluator:       evaluator,
		Dispatcher:      dispatcher,
		Clock:           clk,
		Logger:          logger,
		EscalationRules: defaultEscalationRules,
	})
	policyService := service.NewPolicyService(policyRepo)
	workflowService := service.NewWorkflowService(workflowRepo)
	authService := service.NewAuthService(*cfg, agentRepo)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	queueCache := persistence.NewQueueCache(redis, 30*time.Second)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:    handlers.NewAuthHandler(authService),
		Tickets: handlers.NewTicketsHandler(ticketService),
		Queue: handlers.NewQueueHandler(handlers.QueueHandlerDeps{
			Manager: queueManager,
			Entries: queueRepo,
			Cache:   queueCache,
			Metrics: metrics,
			Logger:  logger,
			LockTTL: cfg.Sweep.LockTTL(),
		}),
		Policies:       handlers.NewPoliciesHandler(policyService),
		Workflows:      handlers.NewWorkflowsHandler(workflowService),
		AuthMiddleware: authMiddleware,
	})

	if cfg.Sweep.Enabled {
		sweepWorker := worker.NewSweepWorker(worker.SweepWorkerDeps{
			Manager:  queueManager,
			Entries:  queueRepo,
			Cache:    queueCache,
			Metrics:  metrics,
			Logger:   logger,
			Interval: cfg.Sweep.Interval(),
			LockTTL:  cfg.Sweep.LockTTL(),
		})
		go sweepWorker.Run(ctx)
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
