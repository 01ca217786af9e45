package bootstrap

import (
	"context"
	"sync"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"

	"dataanalyst/internal/adapters/apiregistry"
	chclient "dataanalyst/internal/adapters/clickhouse"
	"dataanalyst/internal/adapters/config"
	"dataanalyst/internal/adapters/kafka"
	pgclient "dataanalyst/internal/adapters/postgres"
	"dataanalyst/internal/adapters/ratelimit"
	redisclient "dataanalyst/internal/adapters/redis"
	telegram "dataanalyst/internal/adapters/telegram"
	"dataanalyst/internal/agents"
	"dataanalyst/internal/api"
	"dataanalyst/internal/api/health"
	"dataanalyst/internal/consumers"
	chrepo "dataanalyst/internal/repository/clickhouse"
	pgrepo "dataanalyst/internal/repository/postgres"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/internal/services/toolevents"
	"dataanalyst/internal/tools/sqlquery"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	tg "dataanalyst/pkg/telegram"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order. Optional stores are nil
// when not configured.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Business    *Business
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups storage repositories
type Repositories struct {
	Audit *pgrepo.AuditRepository
	Stats *chrepo.StatsRepository
}

// Adapters groups external adapters
type Adapters struct {
	KafkaProducer     *kafka.Producer
	ToolCallsConsumer *kafka.Consumer

	// Exactly one query backend is set
	APIRegistry *apiregistry.Client
	BigQuery    *sqlquery.DB

	RateLimiter ratelimit.Limiter
}

// Services groups application services
type Services struct {
	ADKSession session.Service

	// ToolEvents receives hook events from the agent. Without Kafka it writes
	// straight to storage and is the same recorder as StoredEvents.
	ToolEvents *toolevents.Recorder
	// StoredEvents writes ClickHouse and Postgres
	StoredEvents *toolevents.Recorder

	Analyst *analyst.Service
}

// Business groups the agent and its runtime
type Business struct {
	Model        model.LLM
	AgentFactory *agents.Factory
	Agent        agent.Agent
	Runner       *agents.Runner
}

// Application groups the front-ends served by the serve command
type Application struct {
	HTTPServer      *api.Server
	HealthHandler   *health.Handler
	TelegramBot     tg.Bot // nil when no bot token is configured
	TelegramHandler *telegram.Handler
}

// Background groups background consumers
type Background struct {
	ToolCallSvc *consumers.ToolCallConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Business:    &Business{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInitCore initializes everything a question needs: config, stores,
// sinks, the agent and the analyst service. Used by every command.
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInitCore() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBusiness()
}

// MustInit initializes the core plus the HTTP, Telegram and consumer layers
func (c *Container) MustInit() {
	c.MustInitCore()
	c.MustInitApplication()
	c.MustInitBackground()
}

// StartCore starts the tool event recorders. They outlive the application
// context and are stopped explicitly by Shutdown, so events accepted during
// shutdown are still flushed.
func (c *Container) StartCore() {
	ctx := context.WithoutCancel(c.Context)
	c.Services.ToolEvents.Start(ctx)
	if c.Services.StoredEvents != c.Services.ToolEvents {
		c.Services.StoredEvents.Start(ctx)
	}
}

// Start starts the recorders, consumers and front-ends
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.StartCore()

	if c.Background.ToolCallSvc != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Background.ToolCallSvc.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorf("Tool call consumer failed: %v", err)
			}
		}()
		c.Log.Info("✓ Tool call consumer started")
	}

	if c.Application.TelegramBot != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Application.TelegramBot.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorf("Telegram bot failed: %v", err)
			}
		}()
		c.Log.Info("✓ Telegram bot started")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Application.TelegramBot,
		c.Services.ToolEvents,
		c.Services.StoredEvents,
		c.Adapters.ToolCallsConsumer,
		c.Adapters.KafkaProducer,
		c.Adapters.BigQuery,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
