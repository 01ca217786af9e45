package bootstrap

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"

	"dataanalyst/internal/adapters/apiregistry"
	chclient "dataanalyst/internal/adapters/clickhouse"
	"dataanalyst/internal/adapters/config"
	errnoop "dataanalyst/internal/adapters/errors/noop"
	"dataanalyst/internal/adapters/errors/sentry"
	"dataanalyst/internal/adapters/kafka"
	pgclient "dataanalyst/internal/adapters/postgres"
	"dataanalyst/internal/adapters/ratelimit"
	redisclient "dataanalyst/internal/adapters/redis"
	telegram "dataanalyst/internal/adapters/telegram"
	"dataanalyst/internal/agents"
	"dataanalyst/internal/agents/callbacks"
	"dataanalyst/internal/api"
	"dataanalyst/internal/api/health"
	"dataanalyst/internal/consumers"
	"dataanalyst/internal/events"
	"dataanalyst/internal/metrics"
	chrepo "dataanalyst/internal/repository/clickhouse"
	pgrepo "dataanalyst/internal/repository/postgres"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/internal/services/toolevents"
	"dataanalyst/internal/tools/sqlquery"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	tg "dataanalyst/pkg/telegram"
	"dataanalyst/pkg/telegram/adapters/tgbotapi"
	"dataanalyst/pkg/templates"
)

const (
	connectTimeout = 15 * time.Second
	schemaTimeout  = 30 * time.Second
)

// toolEventsConfig batches tool calls for every writer
var toolEventsConfig = toolevents.Config{
	BatchSize:     200,
	FlushInterval: 5 * time.Second,
	WriteTimeout:  10 * time.Second,
}

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	var file *logger.FileOptions
	if cfg.Log.File != "" {
		file = &logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	if err := logger.InitWithFile(cfg.App.LogLevel, cfg.App.Env, file); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the optional data stores that are configured
func (c *Container) MustInitInfrastructure() {
	var err error
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	if c.Config.Postgres.Enabled() {
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled() {
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}

	if c.Config.Redis.Enabled() {
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories creates repositories for connected stores and makes
// sure their tables exist
func (c *Container) MustInitRepositories() {
	ctx, cancel := context.WithTimeout(c.Context, schemaTimeout)
	defer cancel()

	if c.PG != nil {
		c.Repos.Audit = pgrepo.NewAuditRepository(c.PG.DB())
		if err := c.Repos.Audit.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare audit schema: %v", err)
		}
	}

	if c.CH != nil {
		c.Repos.Stats = chrepo.NewStatsRepository(c.CH.Conn())
		if err := c.Repos.Stats.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare stats schema: %v", err)
		}
	}

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes Kafka, the query backend and the rate limiter
func (c *Container) MustInitAdapters() {
	if c.Config.Kafka.Enabled() {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	}

	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	var err error
	switch c.Config.Query.Backend {
	case config.BackendMCP:
		c.Adapters.APIRegistry, err = apiregistry.New(ctx, c.Config.Google.ProjectID,
			apiregistry.WithEndpoint(c.Config.Google.APIRegistryEndpoint))
		if err != nil {
			c.Log.Fatalf("failed to create api registry client: %v", err)
		}
	case config.BackendBigQuery:
		c.Adapters.BigQuery, err = sqlquery.Open(ctx, c.Config.Google.ProjectID, c.Config.Google.Dataset)
		if err != nil {
			c.Log.Fatalf("failed to connect bigquery: %v", err)
		}
	}
	c.Log.Infof("✓ Query backend: %s", c.Config.Query.Backend)

	c.Adapters.RateLimiter = provideRateLimiter(c.Config, c.Redis, c.Log)
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices initializes session storage and the tool event recorders
func (c *Container) MustInitServices() {
	c.Services.ADKSession = session.InMemoryService()

	var storage []toolevents.Writer
	if c.Repos.Stats != nil {
		storage = append(storage, toolevents.NewStatsWriter(c.Repos.Stats))
	}
	if c.Repos.Audit != nil {
		storage = append(storage, toolevents.NewAuditWriter(c.Repos.Audit))
	}
	c.Services.StoredEvents = toolevents.NewRecorder(toolEventsConfig, storage...)

	// With Kafka the agent only publishes; the consumer feeds storage
	c.Services.ToolEvents = c.Services.StoredEvents
	if c.Adapters.KafkaProducer != nil {
		publisher := events.NewToolCallPublisher(c.Adapters.KafkaProducer, c.Config.Kafka.ToolCallsTopic)
		c.Services.ToolEvents = toolevents.NewRecorder(toolEventsConfig, publisher)
	}

	c.Log.Infow("✓ Tool event writers initialized",
		"storage_writers", len(storage),
		"kafka", c.Adapters.KafkaProducer != nil,
	)
}

// ========================================
// Phase 6: Agent
// ========================================

// MustInitBusiness creates the model, the agent, its runner and the analyst service
func (c *Container) MustInitBusiness() {
	var err error
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	c.Business.Model, err = agents.NewGeminiModel(ctx, c.Config.Google)
	if err != nil {
		c.Log.Fatalf("failed to create model: %v", err)
	}

	deps := agents.FactoryDeps{
		Model: c.Business.Model,
		Sinks: []callbacks.ToolEventSink{
			metrics.ToolSink(),
			callbacks.LogSink(),
			callbacks.TrackerSink(c.ErrorTracker),
			c.Services.ToolEvents,
		},
		Templates: templates.Get(),
	}

	switch {
	case c.Adapters.APIRegistry != nil:
		toolset, err := c.Adapters.APIRegistry.Toolset(ctx, c.Config.Google.MCPServerName(), c.Config.Query.AllowedTools)
		if err != nil {
			c.Log.Fatalf("failed to resolve mcp toolset: %v", err)
		}
		deps.Toolsets = []tool.Toolset{toolset}
	case c.Adapters.BigQuery != nil:
		queryTool, err := sqlquery.New(c.Adapters.BigQuery, sqlquery.Config{
			ProjectID: c.Config.Google.ProjectID,
			Timeout:   c.Config.Query.Timeout,
			ReadOnly:  c.Config.Query.ReadOnly,
			MaxRows:   c.Config.Query.MaxRows,
		})
		if err != nil {
			c.Log.Fatalf("failed to create query tool: %v", err)
		}
		deps.Tools = []tool.Tool{queryTool}
	}

	c.Business.AgentFactory, err = agents.NewFactory(deps)
	if err != nil {
		c.Log.Fatalf("failed to create agent factory: %v", err)
	}

	c.Business.Agent, err = c.Business.AgentFactory.CreateAgent(agents.DefaultAgentConfig(c.Config))
	if err != nil {
		c.Log.Fatalf("failed to create agent: %v", err)
	}

	c.Business.Runner, err = agents.NewRunner(c.Business.Agent, c.Config.App.Name, c.Services.ADKSession, c.Config.Query.QuestionTimeout)
	if err != nil {
		c.Log.Fatalf("failed to create runner: %v", err)
	}

	c.Services.Analyst = analyst.NewService(c.Business.Runner, c.Adapters.RateLimiter, c.Config.Google.Model)

	c.Log.Infow("✓ Agent initialized",
		"agent", agents.AgentName,
		"model", c.Config.Google.Model,
		"backend", c.Config.Query.Backend,
	)
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication initializes health checks, metrics, HTTP and Telegram
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(
		c.Log,
		c.Config.App.Name,
		c.Config.App.Version,
		c.healthChecks()...,
	)

	metrics.Init()
	if c.PG != nil || c.Redis != nil {
		metrics.RegisterCollector(provideAuditCollector(c))
	}
	c.Log.Info("✓ Metrics initialized")

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:            c.Config.HTTP.Port,
		ServiceName:     c.Config.App.Name,
		Version:         c.Config.App.Version,
		QuestionTimeout: c.Config.Query.QuestionTimeout,
	}, c.Application.HealthHandler, c.Services.Analyst, c.Log)

	if c.Config.Telegram.Enabled() {
		c.Application.TelegramBot, c.Application.TelegramHandler = provideTelegramBot(c.Config, c.Services.Analyst, c.Log)
	} else {
		c.Log.Info("Telegram bot disabled (no token)")
	}

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 8: Background Processing
// ========================================

// MustInitBackground starts consuming tool call events when Kafka is configured
func (c *Container) MustInitBackground() {
	if !c.Config.Kafka.Enabled() {
		return
	}

	c.Adapters.ToolCallsConsumer = provideKafkaConsumer(c.Config, c.Config.Kafka.ToolCallsTopic, c.Log)
	c.Background.ToolCallSvc = consumers.NewToolCallConsumer(
		c.Adapters.ToolCallsConsumer,
		c.Services.StoredEvents,
		c.Config.Kafka.ToolCallsTopic,
	)

	c.Log.Info("✓ Background processing initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func (c *Container) healthChecks() []health.Check {
	var checks []health.Check
	if c.PG != nil {
		checks = append(checks, health.Check{Name: "postgres", Fn: c.PG.Health})
	}
	if c.CH != nil {
		checks = append(checks, health.Check{Name: "clickhouse", Fn: c.CH.Health})
	}
	if c.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Fn: c.Redis.Health})
	}
	return checks
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	})
	log.Infow("✓ Kafka consumer initialized", "topic", topic, "group_id", cfg.Kafka.GroupID)
	return consumer
}

func provideRateLimiter(cfg *config.Config, redis *redisclient.Client, log *logger.Logger) ratelimit.Limiter {
	perMinute, burst := cfg.RateLimit.QuestionsPerMinute, cfg.RateLimit.Burst
	if perMinute <= 0 {
		log.Info("Question rate limiting disabled")
		return ratelimit.NewNoOpLimiter()
	}

	if redis != nil {
		log.Infof("✓ Rate limiter: redis, %.0f questions/min per user", perMinute)
		return ratelimit.NewRedisLimiter(redis.Client(), perMinute, burst)
	}

	log.Infof("✓ Rate limiter: in-process, %.0f questions/min per user", perMinute)
	return ratelimit.NewLocalLimiter(perMinute, burst)
}

func provideAuditCollector(c *Container) *metrics.AuditCollector {
	var (
		pg  *sqlx.DB
		rdb *redis.Client
	)
	if c.PG != nil {
		pg = c.PG.DB()
	}
	if c.Redis != nil {
		rdb = c.Redis.Client()
	}
	return metrics.NewAuditCollector(c.Log, pg, rdb, ratelimit.KeyPrefix)
}

func provideTelegramBot(cfg *config.Config, svc *analyst.Service, log *logger.Logger) (tg.Bot, *telegram.Handler) {
	log.Info("Initializing Telegram bot...")

	// Only place that knows about tgbotapi
	bot, err := tgbotapi.NewBot(tgbotapi.Config{
		Token: cfg.Telegram.BotToken,
		Debug: cfg.Telegram.Debug,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	handler := telegram.NewHandler(bot, svc, templates.Get(), telegram.Config{
		QuestionTimeout: cfg.Query.QuestionTimeout,
	}, log)
	bot.SetHandler(handler.HandleUpdate)

	log.Info("✓ Telegram bot initialized")
	return bot, handler
}
