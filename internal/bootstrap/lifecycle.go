package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "dataanalyst/internal/adapters/clickhouse"
	"dataanalyst/internal/adapters/kafka"
	pgclient "dataanalyst/internal/adapters/postgres"
	redisclient "dataanalyst/internal/adapters/redis"
	"dataanalyst/internal/api"
	"dataanalyst/internal/services/toolevents"
	"dataanalyst/internal/tools/sqlquery"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	tg "dataanalyst/pkg/telegram"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Shutdown performs coordinated cleanup in order:
// 1. No new questions accepted (HTTP, Telegram)
// 2. Agent-side tool events flushed to their writers (Kafka or storage)
// 3. Kafka consumer stopped and goroutines drained
// 4. Producer closed, then storage-side events flushed
// 5. Errors and logs flushed
// 6. Database connections last (writers need them until step 4)
// Nil components are skipped.
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	httpServer *api.Server,
	telegramBot tg.Bot,
	toolEvents *toolevents.Recorder,
	storedEvents *toolevents.Recorder,
	toolCallsConsumer *kafka.Consumer,
	kafkaProducer *kafka.Producer,
	bigQuery *sqlquery.DB,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/7] Stopping front-ends...")
	if httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := httpServer.Shutdown(httpCtx); err != nil {
			log.Errorf("HTTP server shutdown failed: %v", err)
		}
		httpCancel()
	}
	if telegramBot != nil {
		telegramBot.Stop()
	}

	log.Info("[2/7] Flushing tool events...")
	l.stopRecorder(shutdownCtx, "tool_events", toolEvents, log)

	log.Info("[3/7] Closing Kafka consumer...")
	if toolCallsConsumer != nil {
		if err := toolCallsConsumer.Close(); err != nil {
			log.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	l.waitForGoroutines(wg, 5*time.Second, log)

	log.Info("[4/7] Closing Kafka producer...")
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Errorf("Kafka producer close failed: %v", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}
	if storedEvents != toolEvents {
		l.stopRecorder(shutdownCtx, "stored_events", storedEvents, log)
	}

	log.Info("[5/7] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, errorTracker, log)

	log.Info("[6/7] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(bigQuery, pgClient, chClient, redisClient, log)

	log.Info("✅ Graceful shutdown complete")
}

func (l *Lifecycle) stopRecorder(ctx context.Context, name string, r *toolevents.Recorder, log *logger.Logger) {
	if r == nil {
		return
	}
	if err := r.Stop(ctx); err != nil {
		log.Errorf("Recorder %s stop failed: %v", name, err)
		return
	}
	if dropped := r.Stats().Dropped; dropped > 0 {
		log.Warnf("Recorder %s dropped %d events while running", name, dropped)
	}
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnf("⚠ Some goroutines did not finish within %s", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorf("Error tracker flush failed: %v", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	bigQuery *sqlquery.DB,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if bigQuery != nil {
		if err := bigQuery.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "bigquery"))
		}
	}

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorf("Database close errors: %v", errors.Join(dbErrors...))
	} else {
		log.Info("✓ Database connections closed")
	}
}
