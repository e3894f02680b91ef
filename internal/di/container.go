package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hanko-field/orderdesk/internal/handlers"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/config"
	"github.com/hanko-field/orderdesk/internal/platform/health"
	"github.com/hanko-field/orderdesk/internal/platform/idempotency"
	"github.com/hanko-field/orderdesk/internal/platform/observability"
	"github.com/hanko-field/orderdesk/internal/repositories"
	"github.com/hanko-field/orderdesk/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders        services.OrderWorkflowService
	Invoices      services.InvoiceService
	Documents     *services.InvoiceDocumentService
	Notifications *services.NotificationDispatcher
	Clients       *services.ClientDirectory
}

// Infrastructure carries the optional adapters built by the process entrypoint. Nil members
// disable the corresponding behaviour.
type Infrastructure struct {
	Logger        *zap.Logger
	Renderer      services.InvoiceRenderer
	Archive       services.InvoiceArchive
	Mail          services.MailTransport
	Events        services.EventPublisher
	TokenVerifier auth.TokenVerifier
	Idempotency   idempotency.Store
	ClientSources []services.NamedClientSource
	Probes        []health.Probe
	Tracer        trace.TracerProvider
	Meter         metric.MeterProvider
	Clock         func() time.Time
}

// Container wires repositories, services, and HTTP routing for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Health       *health.Checker

	infra Infrastructure
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}
	if infra.Idempotency == nil {
		infra.Idempotency = idempotency.NewMemoryStore()
	}

	svc, err := buildServices(ctx, cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	checker, err := health.NewChecker(infra.Probes, infra.Clock)
	if err != nil {
		return nil, fmt.Errorf("build health checker: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Health:       checker,
		infra:        infra,
	}, nil
}

// Router assembles the HTTP router with the standard middleware chain.
func (c *Container) Router() chi.Router {
	logger := c.infra.Logger
	return handlers.NewRouter(
		handlers.WithTimeout(c.Config.Server.WriteTimeout),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(c.Config.Firestore.ProjectID, c.infra.Tracer),
			auth.ActorMiddleware(c.infra.TokenVerifier),
			idempotency.Guard(c.infra.Idempotency, idempotency.WithClock(c.infra.Clock)),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(c.Health, c.infra.Clock)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(c.Services.Orders, c.Services.Invoices).Routes),
		handlers.WithInvoiceRoutes(handlers.NewInvoiceHandlers(c.Services.Invoices, c.Services.Orders).Routes),
	)
}

// Close waits for in-flight notifications and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.Services.Notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.infra.Logger.Warn("notifications still in flight at shutdown")
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services
	events := observability.EventLogger(infra.Logger)
	newID := func() string { return ulid.Make().String() }

	sources := []services.NamedClientSource{{
		Name:   "clients",
		Source: services.ClientRepositorySource(reg.Clients().FindByID),
	}}
	sources = append(sources, infra.ClientSources...)
	clients, err := services.NewClientDirectory(sources...)
	if err != nil {
		return Services{}, fmt.Errorf("build client directory: %w", err)
	}
	svc.Clients = clients

	var sequencer services.NumberSequencer
	switch cfg.Orders.Numbering {
	case config.NumberingCounter:
		sequencer, err = services.NewCounterSequencer(reg.Counters())
	default:
		sequencer, err = services.NewCountingSequencer(reg.Orders(), reg.Invoices())
	}
	if err != nil {
		return Services{}, fmt.Errorf("build number sequencer: %w", err)
	}

	renderer := infra.Renderer
	if renderer != nil {
		documents, err := services.NewInvoiceDocumentService(services.InvoiceDocumentsDeps{
			Invoices: reg.Invoices(),
			Renderer: renderer,
			Archive:  infra.Archive,
			Logger:   events,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build invoice documents: %w", err)
		}
		svc.Documents = documents
	}

	if infra.Mail != nil {
		notifier := services.NewNotifier(services.NotifierDeps{
			Transport:   infra.Mail,
			Renderer:    renderer,
			MaxAttempts: cfg.Notify.MaxAttempts,
			Backoff:     cfg.Notify.Backoff,
			Timeout:     cfg.Notify.Timeout,
			Logger:      events,
		})
		svc.Notifications = services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Notifier:    notifier,
			Documents:   documentsOrNil(svc.Documents),
			AdminEmails: cfg.Mail.AdminEmails,
			Currency:    cfg.Orders.Currency,
			Timeout:     cfg.Notify.DispatchTimeout,
			Meter:       infra.Meter,
			Logger:      events,
		})
	}

	invoices, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices:      reg.Invoices(),
		Clients:       clients,
		Sequencer:     sequencer,
		DueDays:       cfg.Orders.InvoiceDueDays,
		Currency:      cfg.Orders.Currency,
		Documents:     documentsOrNil(svc.Documents),
		Events:        infra.Events,
		Notifications: svc.Notifications,
		Clock:         infra.Clock,
		IDGenerator:   newID,
		Tracer:        infra.Tracer,
		Meter:         infra.Meter,
		Logger:        events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoices

	orders, err := services.NewOrderWorkflowService(services.OrderWorkflowDeps{
		Orders:            reg.Orders(),
		Products:          reg.Products(),
		Clients:           clients,
		Invoices:          invoices,
		Sequencer:         sequencer,
		UnitOfWork:        reg,
		Events:            infra.Events,
		Notifications:     svc.Notifications,
		LowStockThreshold: cfg.Orders.LowStockThreshold,
		Clock:             infra.Clock,
		IDGenerator:       newID,
		Tracer:            infra.Tracer,
		Meter:             infra.Meter,
		Logger:            events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order workflow service: %w", err)
	}
	svc.Orders = orders

	return svc, nil
}

// documentsOrNil keeps a missing document service a nil interface rather than a typed nil.
func documentsOrNil(documents *services.InvoiceDocumentService) services.InvoiceDocuments {
	if documents == nil {
		return nil
	}
	return documents
}
