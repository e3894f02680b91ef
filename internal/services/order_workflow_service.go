package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	defaultLowStockThreshold = 5
)

// OrderWorkflowDeps bundles collaborators required to construct the order workflow.
type OrderWorkflowDeps struct {
	Orders            repositories.OrderRepository
	Products          repositories.ProductRepository
	Clients           *ClientDirectory
	Invoices          InvoiceService
	Sequencer         NumberSequencer
	UnitOfWork        repositories.UnitOfWork
	Events            EventPublisher
	Notifications     *NotificationDispatcher
	LowStockThreshold int
	Clock             func() time.Time
	IDGenerator       func() string
	Tracer            trace.TracerProvider
	Meter             metric.MeterProvider
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type orderWorkflowService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	clients       *ClientDirectory
	invoices      InvoiceService
	sequencer     NumberSequencer
	factory       *OrderAggregateFactory
	unitOfWork    repositories.UnitOfWork
	events        EventPublisher
	notifications *NotificationDispatcher
	lowStock      int
	clock         func() time.Time
	newID         func() string
	telemetry     telemetry
	logger        func(context.Context, string, map[string]any)
}

// NewOrderWorkflowService wires dependencies into a concrete OrderWorkflowService implementation.
func NewOrderWorkflowService(deps OrderWorkflowDeps) (OrderWorkflowService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order workflow: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order workflow: product repository is required")
	}
	if deps.Clients == nil {
		return nil, errors.New("order workflow: client directory is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("order workflow: invoice service is required")
	}
	if deps.Sequencer == nil {
		return nil, errors.New("order workflow: number sequencer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	lowStock := deps.LowStockThreshold
	if lowStock <= 0 {
		lowStock = defaultLowStockThreshold
	}

	validator, err := NewAvailabilityValidator(deps.Products)
	if err != nil {
		return nil, err
	}
	factory, err := NewOrderAggregateFactory(validator, utc)
	if err != nil {
		return nil, err
	}

	return &orderWorkflowService{
		orders:        deps.Orders,
		products:      deps.Products,
		clients:       deps.Clients,
		invoices:      deps.Invoices,
		sequencer:     deps.Sequencer,
		factory:       factory,
		unitOfWork:    unit,
		events:        deps.Events,
		notifications: deps.Notifications,
		lowStock:      lowStock,
		clock:         utc,
		newID:         idGen,
		telemetry:     newTelemetry(deps.Tracer, deps.Meter),
		logger:        logger,
	}, nil
}

func (s *orderWorkflowService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (result domain.Order, err error) {
	ctx, span := s.telemetry.start(ctx, "orders.CreateOrder", attribute.String("client.id", cmd.ClientID))
	defer func() { end(span, err) }()

	client, err := s.clients.Resolve(ctx, cmd.ClientID)
	if err != nil {
		return domain.Order{}, err
	}

	agg, err := s.factory.Create(ctx, NewOrderParams{
		ID:              orderIDPrefix + s.newID(),
		ClientID:        client.ID,
		Items:           cmd.Items,
		ShippingMethod:  cmd.ShippingMethod,
		ShippingAddress: cmd.ShippingAddress,
		DeliveryService: cmd.DeliveryService,
		DeliveryFee:     cmd.DeliveryFee,
		Tax:             cmd.TaxAmount,
		Discount:        cmd.DiscountAmount,
		DiscountReason:  cmd.DiscountReason,
		Notes:           cmd.Notes,
		ActorID:         cmd.ActorID,
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.logClamp(ctx, agg)

	now := s.clock()
	seq, err := s.sequencer.Next(ctx, SequenceOrder, now)
	if err != nil {
		return domain.Order{}, err
	}
	agg.order.OrderNumber = FormatOrderNumber(now, seq)

	order := agg.Order()
	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, mapRepositoryError("orders.insert", "order "+order.ID, err)
	}
	s.telemetry.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("shipping_method", string(order.ShippingMethod)),
		attribute.Bool("delivery_fee_pending", order.DeliveryFeePending),
	))

	var invoice *domain.Invoice
	if !order.TotalAmount.IsPending() {
		created, err := s.invoices.CreateForOrder(ctx, order, client)
		if err != nil {
			s.discardOrder(ctx, order, err)
			return domain.Order{}, err
		}
		invoice = &created
		agg.LinkInvoice(created.ID)
		agg.SetPaymentStatus(PaymentStatusFor(created))
	}

	agg.MarkStockCommitted(s.commitStock(ctx, order, -1))

	linked := agg.Order()
	if err := s.orders.Update(ctx, linked, order.Version); err != nil {
		// the order and its invoice are stored; only the link back failed
		s.logger(ctx, "order.invoice.link.failed", map[string]any{
			"order":   order.ID,
			"invoice": linked.InvoiceID,
			"error":   err.Error(),
		})
		return order, mapRepositoryError("orders.update", "order "+order.ID, err)
	}
	order = linked
	order.Version++

	s.publish(ctx, DomainEvent{
		Name:       EventOrderCreated,
		OrderID:    order.ID,
		InvoiceID:  order.InvoiceID,
		OccurredAt: now,
		Payload: map[string]any{
			"orderNumber":        order.OrderNumber,
			"clientId":           order.ClientID,
			"totalAmount":        order.TotalAmount.String(),
			"deliveryFeePending": order.DeliveryFeePending,
		},
	})
	s.notifications.OrderCreated(ctx, order, client, invoice)
	return order, nil
}

func (s *orderWorkflowService) UpdateDeliveryFee(ctx context.Context, cmd UpdateDeliveryFeeCommand) (result domain.Order, err error) {
	ctx, span := s.telemetry.start(ctx, "orders.UpdateDeliveryFee", attribute.String("order.id", cmd.OrderID))
	defer func() { end(span, err) }()

	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !current.DeliveryFeePending {
		return domain.Order{}, domain.NewStateError(domain.StateReasonFeeNotPending, "order %s has no pending delivery fee", current.ID)
	}

	client, err := s.clients.Resolve(ctx, current.ClientID)
	if err != nil {
		return domain.Order{}, err
	}

	agg := s.factory.Rehydrate(current)
	if err := agg.UpdateDeliveryFee(cmd.Fee, cmd.DeliveryService, cmd.ActorID); err != nil {
		return domain.Order{}, err
	}
	s.logClamp(ctx, agg)
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		return domain.Order{}, err
	}

	var invoice *domain.Invoice
	if order.InvoiceID == "" {
		created, err := s.invoices.CreateForOrder(ctx, order, client)
		if err != nil {
			return domain.Order{}, err
		}
		invoice = &created
		agg = s.factory.Rehydrate(order)
		agg.LinkInvoice(created.ID)
		agg.SetPaymentStatus(PaymentStatusFor(created))
		if order, err = s.save(ctx, agg, order.Version); err != nil {
			return domain.Order{}, err
		}
	}

	fee, _ := order.ShippingCost.Value()
	s.publish(ctx, DomainEvent{
		Name:       EventOrderDeliveryFeeUpdated,
		OrderID:    order.ID,
		InvoiceID:  order.InvoiceID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"deliveryFee": fee.StringFixed(2),
			"totalAmount": order.TotalAmount.String(),
			"actor":       strings.TrimSpace(cmd.ActorID),
		},
	})
	s.notifications.DeliveryFeeUpdated(ctx, order, client, invoice)
	return order, nil
}

func (s *orderWorkflowService) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (domain.Order, error) {
	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if current.InvoiceID != "" {
		invoice, err := s.invoices.FindByOrder(ctx, current.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, err
		}
		if err == nil && (len(invoice.Payments) > 0 || invoice.Status == domain.InvoiceStatusCancelled) {
			return domain.Order{}, domain.NewStateError(domain.StateReasonInvoiceNotEditable,
				"invoice %s already has payments", invoice.InvoiceNumber)
		}
	}

	agg := s.factory.Rehydrate(current)
	if err := agg.ApplyDiscount(cmd.Amount, cmd.Reason, cmd.ActorID); err != nil {
		return domain.Order{}, err
	}
	s.logClamp(ctx, agg)
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		return domain.Order{}, err
	}

	if order.InvoiceID != "" {
		synced, err := s.invoices.SyncWithOrder(ctx, order)
		if err != nil {
			s.logger(ctx, "order.invoice.sync.failed", map[string]any{
				"order":   order.ID,
				"invoice": order.InvoiceID,
				"error":   err.Error(),
			})
		} else if refreshed, ok := s.syncPaymentStatus(ctx, synced); ok {
			order = refreshed
		}
	}

	s.publishUpdated(ctx, order, "discount", cmd.ActorID)
	return order, nil
}

func (s *orderWorkflowService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if cmd.TargetStatus == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, CancelOrderCommand{OrderID: cmd.OrderID, Reason: cmd.Note, ActorID: cmd.ActorID})
	}

	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	agg := s.factory.Rehydrate(current)
	if err := agg.Transition(cmd.TargetStatus, cmd.Note, cmd.ActorID); err != nil {
		return domain.Order{}, err
	}
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, DomainEvent{
		Name:       EventOrderUpdated,
		OrderID:    order.ID,
		InvoiceID:  order.InvoiceID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"change":         "status",
			"previousStatus": string(current.Status),
			"status":         string(order.Status),
			"actor":          strings.TrimSpace(cmd.ActorID),
		},
	})
	return order, nil
}

func (s *orderWorkflowService) AttachTracking(ctx context.Context, cmd AttachTrackingCommand) (domain.Order, error) {
	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	agg := s.factory.Rehydrate(current)
	if err := agg.AttachTracking(cmd.TrackingNumber, cmd.Carrier, cmd.ActorID); err != nil {
		return domain.Order{}, err
	}
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		return domain.Order{}, err
	}
	s.publishUpdated(ctx, order, "tracking", cmd.ActorID)
	return order, nil
}

func (s *orderWorkflowService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (result domain.Order, err error) {
	ctx, span := s.telemetry.start(ctx, "orders.CancelOrder", attribute.String("order.id", cmd.OrderID))
	defer func() { end(span, err) }()

	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	agg := s.factory.Rehydrate(current)
	if err := agg.Cancel(cmd.Reason, cmd.ActorID); err != nil {
		return domain.Order{}, err
	}
	restock := current.StockCommitted && current.ShippedAt == nil
	if restock {
		agg.MarkStockCommitted(false)
	}
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		return domain.Order{}, err
	}

	if restock {
		s.commitStock(ctx, order, +1)
	}
	if order.InvoiceID != "" {
		order = s.cancelInvoice(ctx, order, cmd.ActorID)
	}

	s.publish(ctx, DomainEvent{
		Name:       EventOrderCancelled,
		OrderID:    order.ID,
		InvoiceID:  order.InvoiceID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"previousStatus": string(current.Status),
			"reason":         order.CancelReason,
			"actor":          strings.TrimSpace(cmd.ActorID),
		},
	})

	if client, err := s.clients.Resolve(ctx, order.ClientID); err == nil {
		s.notifications.OrderCancelled(ctx, order, client)
	} else {
		s.logger(ctx, "notification.dispatch.failed", map[string]any{
			"kind":  "order.cancelled",
			"id":    order.ID,
			"error": err.Error(),
		})
	}
	return order, nil
}

func (s *orderWorkflowService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) (err error) {
	ctx, span := s.telemetry.start(ctx, "orders.DeleteOrder", attribute.String("order.id", cmd.OrderID))
	defer func() { end(span, err) }()

	current, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := s.factory.Rehydrate(current).CanDelete(); err != nil {
		return err
	}

	if err := s.invoices.DeleteForOrder(ctx, current.ID); err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, current.ID); err != nil {
		return mapRepositoryError("orders.delete", "order "+current.ID, err)
	}
	if current.StockCommitted {
		s.commitStock(ctx, current, +1)
	}

	s.publish(ctx, DomainEvent{
		Name:       EventOrderDeleted,
		OrderID:    current.ID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"orderNumber": current.OrderNumber,
			"actor":       strings.TrimSpace(cmd.ActorID),
		},
	})
	return nil
}

func (s *orderWorkflowService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *orderWorkflowService) ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, validationError("unknown order status %q", status)
		}
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		ClientID: strings.TrimSpace(filter.ClientID),
		Status:   filter.Status,
		Limit:    normalizeLimit(filter.Limit),
	})
	if err != nil {
		return nil, mapRepositoryError("orders.list", "orders", err)
	}
	return orders, nil
}

func (s *orderWorkflowService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Invoice, error) {
	invoice, err := s.invoices.RecordPayment(ctx, cmd)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice.OrderID != "" {
		s.syncPaymentStatus(ctx, invoice)
	}
	return invoice, nil
}

// cancelInvoice cancels the linked invoice unless it is fully paid and mirrors the outcome onto
// the order's payment status.
func (s *orderWorkflowService) cancelInvoice(ctx context.Context, order domain.Order, actor string) domain.Order {
	invoice, err := s.invoices.UpdateStatus(ctx, UpdateInvoiceStatusCommand{
		InvoiceID: order.InvoiceID,
		Status:    domain.InvoiceStatusCancelled,
		ActorID:   actor,
	})
	if err != nil {
		if reason, ok := domain.StateReasonOf(err); !ok || reason != domain.StateReasonInvoiceNotEditable {
			s.logger(ctx, "order.invoice.cancel.failed", map[string]any{
				"order":   order.ID,
				"invoice": order.InvoiceID,
				"error":   err.Error(),
			})
		}
		return order
	}
	if synced, ok := s.syncPaymentStatus(ctx, invoice); ok {
		return synced
	}
	return order
}

func (s *orderWorkflowService) syncPaymentStatus(ctx context.Context, invoice domain.Invoice) (domain.Order, bool) {
	current, err := s.orders.FindByID(ctx, invoice.OrderID)
	if err != nil {
		s.logger(ctx, "order.payment_status.sync.failed", map[string]any{
			"order":   invoice.OrderID,
			"invoice": invoice.ID,
			"error":   err.Error(),
		})
		return domain.Order{}, false
	}
	agg := s.factory.Rehydrate(current)
	if !agg.SetPaymentStatus(PaymentStatusFor(invoice)) {
		return current, true
	}
	order, err := s.save(ctx, agg, current.Version)
	if err != nil {
		s.logger(ctx, "order.payment_status.sync.failed", map[string]any{
			"order":   invoice.OrderID,
			"invoice": invoice.ID,
			"error":   err.Error(),
		})
		return domain.Order{}, false
	}
	s.publishUpdated(ctx, order, "payment_status", "")
	return order, true
}

// commitStock applies direction × quantity to every line inside one unit of work. Failures are
// logged and reported as false; the order itself is never rolled back because of stock.
func (s *orderWorkflowService) commitStock(ctx context.Context, order domain.Order, direction int) bool {
	var adjusted []domain.Product
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		adjusted = adjusted[:0]
		for _, item := range order.Items {
			product, err := s.products.AdjustStock(txCtx, item.ProductID, direction*item.Quantity)
			if err != nil {
				return mapRepositoryError("products.adjust_stock", "product "+item.ProductID, err)
			}
			adjusted = append(adjusted, product)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.stock.adjust.failed", map[string]any{
			"order":     order.ID,
			"direction": direction,
			"error":     err.Error(),
		})
		return false
	}

	if direction < 0 {
		now := s.clock()
		for _, product := range adjusted {
			if product.StockQuantity > s.lowStock {
				continue
			}
			s.publish(ctx, DomainEvent{
				Name:       EventProductLowStock,
				OrderID:    order.ID,
				ProductID:  product.ID,
				OccurredAt: now,
				Payload: map[string]any{
					"name":          product.Name,
					"stockQuantity": product.StockQuantity,
					"threshold":     s.lowStock,
				},
			})
		}
	}
	return true
}

func (s *orderWorkflowService) loadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, validationError("order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError("orders.get", "order "+orderID, err)
	}
	return order, nil
}

// save persists the aggregate when the stored version still equals expected.
func (s *orderWorkflowService) logClamp(ctx context.Context, agg *OrderAggregate) {
	if !agg.DiscountClamped() {
		return
	}
	order := agg.Order()
	s.logger(ctx, "pricing.discount.clamped", map[string]any{
		"order":    order.ID,
		"subtotal": order.Subtotal.StringFixed(2),
		"discount": order.DiscountAmount.StringFixed(2),
	})
}

// discardOrder removes an order whose invoice could not be written so no half-created order
// keeps its number.
func (s *orderWorkflowService) discardOrder(ctx context.Context, order domain.Order, cause error) {
	if err := s.orders.Delete(context.WithoutCancel(ctx), order.ID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "order.discard.failed", map[string]any{
			"order": order.ID,
			"cause": cause.Error(),
			"error": err.Error(),
		})
	}
}

func (s *orderWorkflowService) save(ctx context.Context, agg *OrderAggregate, expected int64) (domain.Order, error) {
	order := agg.Order()
	if err := s.orders.Update(ctx, order, expected); err != nil {
		return domain.Order{}, mapRepositoryError("orders.update", "order "+order.ID, err)
	}
	order.Version = expected + 1
	return order, nil
}

func (s *orderWorkflowService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderWorkflowService) publishUpdated(ctx context.Context, order domain.Order, change, actor string) {
	s.publish(ctx, DomainEvent{
		Name:       EventOrderUpdated,
		OrderID:    order.ID,
		InvoiceID:  order.InvoiceID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"change": change,
			"status": string(order.Status),
			"actor":  strings.TrimSpace(actor),
		},
	})
}

func (s *orderWorkflowService) publish(ctx context.Context, event DomainEvent) {
	publishEvent(ctx, s.events, s.logger, event)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
