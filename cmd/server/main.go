// Command server runs the AVINI Labs backend: multi-tenant billing, report
// generation, sample routing and the encrypted routing channel, persisted in
// the collection store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"avinilabs/internal/access"
	"avinilabs/internal/audit"
	"avinilabs/internal/billing"
	"avinilabs/internal/catalog"
	"avinilabs/internal/jsonstore"
	"avinilabs/internal/jwttoken"
	"avinilabs/internal/notification"
	"avinilabs/internal/patient"
	"avinilabs/internal/platform/config"
	"avinilabs/internal/platform/crypt"
	"avinilabs/internal/platform/httpserver"
	"avinilabs/internal/platform/logger"
	"avinilabs/internal/platform/metrics"
	redisclient "avinilabs/internal/platform/redis"
	"avinilabs/internal/report"
	"avinilabs/internal/routing"
	"avinilabs/internal/sample"
	"avinilabs/internal/sid"
	"avinilabs/internal/tenant"
	httptransport "avinilabs/internal/transport/http"
	"avinilabs/internal/user"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backing jsonstore.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := jsonstore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres store init failed", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		backing = pgStore
		log.Info("using postgres collection store")
	} else {
		fileStore, err := jsonstore.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Error("file store init failed", "error", err, "dir", cfg.DataDir)
			os.Exit(1)
		}
		backing = fileStore
		log.Info("using file collection store", "dir", cfg.DataDir)
	}

	tenants := tenant.NewStore(backing)
	if err := tenant.SeedDefaultModules(ctx, tenants); err != nil {
		log.Error("module seed failed", "error", err)
		os.Exit(1)
	}
	if _, err := tenant.SeedBootstrapTenant(ctx, tenants); err != nil {
		log.Error("tenant seed failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewWith(registry)

	// Audit pipeline: services publish to a channel, the worker persists the
	// ring-buffered logs and mirrors to Kafka when configured.
	publisher := audit.NewChannelPublisher(1024, log)
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit events mirrored to kafka", "topic", cfg.KafkaTopic)
	}
	worker := audit.NewWorker(audit.NewStore(backing), publisher, sink, log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	evaluator := access.NewEvaluator(tenants)
	tokens := jwttoken.NewService(cfg.JWTSigningKey, cfg.TokenLifetime)
	users := user.NewStore(backing)
	userService := user.NewService(users, tokens,
		user.WithLogger(log), user.WithAuditPublisher(publisher))
	tenantService := tenant.NewService(tenants,
		tenant.WithLogger(log), tenant.WithAuditPublisher(publisher))

	allocator := sid.NewAllocator(backing, tenants,
		sid.WithLogger(log), sid.WithMetrics(m))
	billingService := billing.NewService(billing.NewStore(backing), allocator, evaluator,
		billing.WithLogger(log), billing.WithAuditPublisher(publisher), billing.WithMetrics(m))

	patients := patient.NewStore(backing)
	patientService := patient.NewService(patients, evaluator, log)
	sampleService := sample.NewService(sample.NewStore(backing), evaluator)

	resolver := catalog.NewResolver(catalog.NewStore(backing), log)
	reportService := report.NewService(report.Deps{
		Store:     report.NewStore(backing),
		Billings:  billing.NewStore(backing),
		Patients:  patients,
		Tenants:   tenants,
		Resolver:  resolver,
		Allocator: allocator,
		Evaluator: evaluator,
	}, report.WithLogger(log), report.WithAuditPublisher(publisher), report.WithMetrics(m))

	notifyOpts := []notification.Option{
		notification.WithLogger(log),
		notification.WithAuditPublisher(publisher),
		notification.WithMetrics(m),
	}
	redisConn, err := redisclient.New(config.DefaultRedisConfig(cfg.RedisURL))
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisConn != nil {
		defer redisConn.Close()
		notifyOpts = append(notifyOpts, notification.WithQueue(notification.NewRedisQueue(redisConn, "")))
		log.Info("notifications mirrored to redis")
	}
	notificationService := notification.NewService(notification.NewStore(backing), notifyOpts...)

	routingStore := routing.NewStore(backing)
	invoiceCoordinator := routing.NewInvoiceCoordinator(routingStore,
		routing.WithLogger(log), routing.WithAuditPublisher(publisher))
	routingService := routing.NewService(routingStore, users, evaluator, invoiceCoordinator,
		routing.WithLogger(log), routing.WithAuditPublisher(publisher),
		routing.WithMetrics(m), routing.WithNotifier(notificationService))
	chatService := routing.NewChatService(routingStore, routingService, users,
		crypt.NewPairBox(cfg.JWTSigningKey),
		routing.WithLogger(log), routing.WithAuditPublisher(publisher))

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        log,
		Validator:     tokens,
		Users:         userService,
		Billings:      billingService,
		Reports:       reportService,
		Routings:      routingService,
		Invoices:      invoiceCoordinator,
		Chat:          chatService,
		Patients:      patientService,
		Samples:       sampleService,
		Notifications: notificationService,
		Tenants:       tenantService,
		Registry:      registry,
	})

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
