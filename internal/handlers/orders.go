package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
	"github.com/hanko-field/orderdesk/internal/services"
)

// OrderHandlers exposes the order workflow over HTTP.
type OrderHandlers struct {
	workflow services.OrderWorkflowService
	invoices services.InvoiceService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(workflow services.OrderWorkflowService, invoices services.InvoiceService) *OrderHandlers {
	return &OrderHandlers{workflow: workflow, invoices: invoices}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/delivery-fee", h.updateDeliveryFee)
	r.Post("/{orderID}/discount", h.applyDiscount)
	r.Post("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/tracking", h.attachTracking)
	r.Get("/{orderID}/invoice", h.getOrderInvoice)
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant"`
}

type createOrderRequest struct {
	ClientID        string             `json:"clientId"`
	Items           []orderItemRequest `json:"items"`
	ShippingMethod  string             `json:"shippingMethod"`
	ShippingAddress *domain.Address    `json:"shippingAddress"`
	DeliveryService string             `json:"deliveryService"`
	DeliveryFee     *decimal.Decimal   `json:"deliveryFee"`
	TaxAmount       decimal.Decimal    `json:"taxAmount"`
	DiscountAmount  decimal.Decimal    `json:"discountAmount"`
	DiscountReason  string             `json:"discountReason"`
	Notes           string             `json:"notes"`
}

type deliveryFeeRequest struct {
	Fee             *decimal.Decimal `json:"fee"`
	DeliveryService string           `json:"deliveryService"`
}

type discountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type trackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

type orderListResponse struct {
	Items []domain.Order `json:"items"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			Variant:   strings.TrimSpace(item.Variant),
		})
	}

	order, err := h.workflow.CreateOrder(ctx, services.CreateOrderCommand{
		ClientID:        strings.TrimSpace(req.ClientID),
		Items:           items,
		ShippingMethod:  domain.ShippingMethod(strings.ToLower(strings.TrimSpace(req.ShippingMethod))),
		ShippingAddress: req.ShippingAddress,
		DeliveryService: strings.TrimSpace(req.DeliveryService),
		DeliveryFee:     req.DeliveryFee,
		TaxAmount:       req.TaxAmount,
		DiscountAmount:  req.DiscountAmount,
		DiscountReason:  strings.TrimSpace(req.DiscountReason),
		Notes:           req.Notes,
		ActorID:         requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: order})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit, err := parseLimit(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var statuses []domain.OrderStatus
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status "+raw, http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	orders, err := h.workflow.ListOrders(ctx, services.OrderListFilter{
		ClientID: strings.TrimSpace(query.Get("clientId")),
		Status:   statuses,
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: orders})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.workflow.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.workflow.DeleteOrder(ctx, services.DeleteOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && err != httpx.ErrEmptyBody {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.workflow.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) updateDeliveryFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req deliveryFeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Fee == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fee is required", http.StatusBadRequest))
		return
	}

	order, err := h.workflow.UpdateDeliveryFee(ctx, services.UpdateDeliveryFeeCommand{
		OrderID:         chi.URLParam(r, "orderID"),
		Fee:             *req.Fee,
		DeliveryService: strings.TrimSpace(req.DeliveryService),
		ActorID:         requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req discountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount is required", http.StatusBadRequest))
		return
	}

	order, err := h.workflow.ApplyDiscount(ctx, services.ApplyDiscountCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Amount:  *req.Amount,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.workflow.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: target,
		Note:         strings.TrimSpace(req.Note),
		ActorID:      requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) attachTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req trackingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.workflow.AttachTracking(ctx, services.AttachTrackingCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		Carrier:        strings.TrimSpace(req.Carrier),
		ActorID:        requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) getOrderInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoice, err := h.invoices.FindByOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: invoice})
}
