// Command deskcored is the automation core process: it wires the
// Postgres repositories, the Redis distributed lock, the in-process
// event bus, every engine (assignment, SLA, automation, availability,
// action executor), the job queue worker and scheduler, the webhook
// dispatcher/deliverer, and the notification hub's websocket endpoint
// into one running service, the way the teacher's cmd/appserver wires
// its own application graph.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/infrastructure/config"
	"github.com/oxidesk/deskcore/infrastructure/lock"
	"github.com/oxidesk/deskcore/infrastructure/metrics"
	"github.com/oxidesk/deskcore/internal/database/postgres"
	"github.com/oxidesk/deskcore/internal/memstore"
	"github.com/oxidesk/deskcore/pkg/logger"
	"github.com/oxidesk/deskcore/services/actionexecutor"
	"github.com/oxidesk/deskcore/services/assignment"
	"github.com/oxidesk/deskcore/services/automation"
	"github.com/oxidesk/deskcore/services/availability"
	"github.com/oxidesk/deskcore/services/jobqueue"
	"github.com/oxidesk/deskcore/services/listeners"
	"github.com/oxidesk/deskcore/services/notifyhub"
	"github.com/oxidesk/deskcore/services/scheduler"
	"github.com/oxidesk/deskcore/services/slaengine"
	"github.com/oxidesk/deskcore/services/webhook"
)

// ruleEngineAdapter satisfies listeners.RuleEngine on top of
// automation.Engine.Handle, which by design never returns an error
// (every failure is trapped and logged at the rule boundary).
type ruleEngineAdapter struct {
	engine *automation.Engine
}

func (a ruleEngineAdapter) Handle(ctx context.Context, evt events.SystemEvent) error {
	a.engine.Handle(ctx, evt)
	return nil
}

func main() {
	migrateFlag := flag.Bool("migrate", true, "run database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.WithField("error", err).Fatal("open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxConnections)
	db.SetConnMaxIdleTime(cfg.DBIdleTimeout)

	if cfg.RunMigrations && *migrateFlag {
		if err := runMigrations(db, log); err != nil {
			log.WithField("error", err).Fatal("apply migrations")
		}
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	store := postgres.Open(db)
	if err := store.HealthCheck(rootCtx); err != nil {
		log.WithField("error", err).Fatal("database health check")
	}

	conversations := postgres.NewConversations(store)
	slaRepo := postgres.NewSla(store)
	automationRepo := postgres.NewAutomation(store)
	agents := postgres.NewAgents(store)
	teams := postgres.NewTeams(store)
	jobs := postgres.NewJobs(store)
	webhooks := postgres.NewWebhooks(store)
	history := postgres.NewAssignmentHistory(store)
	notifications := postgres.NewNotifications(store)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	// distLock is a ready DistributedLock seam for a future per-inbox
	// poll worker (spec.md §5); nothing in this process claims one yet.
	distLock := lock.New(redisClient)
	_ = distLock

	// permissions is an in-memory PermissionChecker: RBAC/ACL evaluation
	// is a deliberately external seam this module does not own.
	permissions := memstore.NewPermissions()

	clock := ports.SystemTimeService{}
	bus := events.New(256)
	defer bus.Close()

	hub := notifyhub.New(log)

	executor := actionexecutor.New(conversations, agents, teams, bus, clock, log)
	slaEngine := slaengine.New(slaRepo, conversations, teams, bus, clock, log)
	executor.SetSlaApplier(slaEngine)

	automationEngine := automation.New(automationRepo, conversations, executor, clock, automation.DefaultConfig(), log)

	assignmentEngine := assignment.New(conversations, teams, agents, permissions, history, notifications, bus, clock, hub, log)

	availabilityEngine := availability.New(agents, bus, clock, availability.DefaultConfig(), log)
	availabilityEngine.SetUnassigner(assignmentUnassigner{assignmentEngine})

	webhookDispatcher := webhook.NewDispatcher(webhooks, jobs, clock, log)
	webhookDeliverer := webhook.NewDeliverer(webhooks, log)

	listenerGroup := listeners.NewGroup(bus, log)
	stopListeners := listenerGroup.Start(rootCtx, ruleEngineAdapter{automationEngine}, slaEngine, webhookDispatcher)
	defer stopListeners()

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	worker := jobqueue.New(jobs, clock, log)
	worker.SetMetrics(appMetrics)
	jobqueue.RegisterCoreHandlers(worker, slaEngine, availabilityEngine, log)
	webhookDeliverer.SetMetrics(appMetrics)
	worker.Register(domain.JobTypeDeliverWebhook, webhookDeliverer.Deliver)

	workerErrs := make(chan error, 1)
	go func() { workerErrs <- worker.Run(rootCtx) }()

	sched := scheduler.New(jobs, clock, log)
	if err := sched.Start(rootCtx); err != nil {
		log.WithField("error", err).Fatal("start scheduler")
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if err := hub.Upgrade(w, r, userID); err != nil {
			log.WithField("error", err).Warn("websocket upgrade failed")
		}
	})
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Error("http server stopped unexpectedly")
		}
	}()

	log.WithField("addr", cfg.HTTPAddr).Info("deskcored started")

	select {
	case <-rootCtx.Done():
	case err := <-workerErrs:
		if err != nil {
			log.WithField("error", err).Error("job worker stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("http server shutdown")
	}
}

// assignmentUnassigner adapts *assignment.Engine to availability.Unassigner.
type assignmentUnassigner struct {
	engine *assignment.Engine
}

func (a assignmentUnassigner) AutoUnassignOnAway(ctx context.Context, userID string) error {
	return a.engine.AutoUnassignOnAway(ctx, userID)
}

func runMigrations(db *sql.DB, log *logger.Logger) error {
	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	log.Info("migrations applied")
	return nil
}
