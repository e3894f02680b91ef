package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/orderdesk/internal/di"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/config"
	"github.com/hanko-field/orderdesk/internal/platform/events"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/platform/health"
	"github.com/hanko-field/orderdesk/internal/platform/idempotency"
	"github.com/hanko-field/orderdesk/internal/platform/mail"
	"github.com/hanko-field/orderdesk/internal/platform/observability"
	"github.com/hanko-field/orderdesk/internal/platform/pdf"
	"github.com/hanko-field/orderdesk/internal/platform/secrets"
	platformstorage "github.com/hanko-field/orderdesk/internal/platform/storage"
	firestoreRepo "github.com/hanko-field/orderdesk/internal/repositories/firestore"
	"github.com/hanko-field/orderdesk/internal/services"
)

const (
	envPrefix     = "ORDERDESK_"
	defaultIssuer = "Order Desk"
	probeTimeout  = 3 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger(os.Getenv(envPrefix + "LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("orderdesk")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger = logger.With(zap.String("environment", cfg.Environment))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithReadinessCollections(firestoreRepo.ReadinessCollections...))
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise firestore registry", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider, "")
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	infra := di.Infrastructure{
		Logger:      logger.Named("http"),
		Renderer:    pdf.NewInvoiceRenderer(issuerName(cfg)),
		Idempotency: idempotencyStore,
		Tracer:      otel.GetTracerProvider(),
		Meter:       otel.GetMeterProvider(),
		Probes: []health.Probe{{
			Name:    "firestore",
			Timeout: probeTimeout,
			Check:   firestoreProvider.Ping,
		}},
	}

	var closers []func()

	if topicName := strings.TrimSpace(cfg.PubSub.Topic); topicName != "" && cfg.PubSub.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := events.NewPubSubPublisher(pubsubClient.Topic(topicName))
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		infra.Events = publisher
		closers = append(closers, func() {
			publisher.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		})
	} else {
		logger.Info("event publishing disabled; no pubsub topic configured")
	}

	if bucket := strings.TrimSpace(cfg.Storage.InvoiceBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		archive, err := platformstorage.NewInvoiceArchive(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise invoice archive", zap.Error(err))
		}
		infra.Archive = archive
		closers = append(closers, func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		})
	}

	if strings.TrimSpace(cfg.Mail.SMTPHost) != "" {
		transport, err := mail.NewSMTPTransport(mail.Config{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
		})
		if err != nil {
			logger.Fatal("failed to initialise smtp transport", zap.Error(err))
		}
		infra.Mail = transport
	} else {
		logger.Info("email notifications disabled; no smtp host configured")
	}

	if cfg.Firebase.ProjectID != "" {
		firebase, err := auth.NewFirebase(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase", zap.Error(err))
		}
		infra.TokenVerifier = firebase
		if cfg.Firebase.UsersAsClients {
			infra.ClientSources = append(infra.ClientSources, services.NamedClientSource{
				Name:   "firebase-users",
				Source: auth.NewUserClientSource(firebase),
			})
		}
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orderdesk api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(os.Getenv(envPrefix + key))
	}

	defaultProject := lookup("SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames demands the SMTP password only when authenticated SMTP is configured.
func requiredSecretNames() []string {
	if strings.TrimSpace(os.Getenv(envPrefix+"SMTP_USERNAME")) == "" {
		return nil
	}
	return []string{"Mail.SMTPPassword"}
}

func issuerName(cfg config.Config) string {
	if name := strings.TrimSpace(os.Getenv(envPrefix + "INVOICE_ISSUER")); name != "" {
		return name
	}
	if from := strings.TrimSpace(cfg.Mail.From); from != "" {
		return from
	}
	return defaultIssuer
}
