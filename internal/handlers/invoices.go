package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
	"github.com/hanko-field/orderdesk/internal/services"
)

// InvoiceHandlers exposes invoices and their payment ledger. Payments are recorded through the
// order workflow so the linked order mirrors the payment status.
type InvoiceHandlers struct {
	invoices services.InvoiceService
	workflow services.OrderWorkflowService
}

// NewInvoiceHandlers constructs a new InvoiceHandlers instance.
func NewInvoiceHandlers(invoices services.InvoiceService, workflow services.OrderWorkflowService) *InvoiceHandlers {
	return &InvoiceHandlers{invoices: invoices, workflow: workflow}
}

// Routes registers the /invoices endpoints.
func (h *InvoiceHandlers) Routes(r chi.Router) {
	r.Get("/", h.listInvoices)
	r.Post("/", h.createStandalone)
	r.Post("/overdue:refresh", h.refreshOverdue)
	r.Get("/{invoiceID}", h.getInvoice)
	r.Get("/{invoiceID}/pdf", h.invoicePDF)
	r.Post("/{invoiceID}/payments", h.recordPayment)
	r.Post("/{invoiceID}/status", h.updateStatus)
}

type standaloneItemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createInvoiceRequest struct {
	ClientID    string                  `json:"clientId"`
	Items       []standaloneItemRequest `json:"items"`
	Tax         decimal.Decimal         `json:"tax"`
	Discount    decimal.Decimal         `json:"discount"`
	DeliveryFee decimal.Decimal         `json:"deliveryFee"`
	DueDate     *time.Time              `json:"dueDate"`
	Notes       string                  `json:"notes"`
	Draft       bool                    `json:"draft"`
}

type paymentRequest struct {
	Amount    *decimal.Decimal `json:"amount"`
	Method    string           `json:"method"`
	Reference string           `json:"reference"`
	Date      *time.Time       `json:"date"`
	Notes     string           `json:"notes"`
}

type invoiceStatusRequest struct {
	Status string `json:"status"`
}

type invoiceResponse struct {
	Invoice domain.Invoice `json:"invoice"`
}

type invoiceListResponse struct {
	Items []domain.Invoice `json:"items"`
}

func (h *InvoiceHandlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit, err := parseLimit(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var statuses []domain.InvoiceStatus
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.InvoiceStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown invoice status "+raw, http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	invoices, err := h.invoices.ListInvoices(ctx, services.InvoiceListFilter{
		ClientID: strings.TrimSpace(query.Get("clientId")),
		Status:   statuses,
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceListResponse{Items: invoices})
}

func (h *InvoiceHandlers) createStandalone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	items := make([]services.StandaloneItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.StandaloneItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			Unit:      strings.TrimSpace(item.Unit),
			UnitPrice: item.UnitPrice,
		})
	}

	invoice, err := h.invoices.CreateStandalone(ctx, services.CreateStandaloneInvoiceCommand{
		ClientID:    strings.TrimSpace(req.ClientID),
		Items:       items,
		Tax:         req.Tax,
		Discount:    req.Discount,
		DeliveryFee: req.DeliveryFee,
		DueDate:     req.DueDate,
		Notes:       req.Notes,
		Draft:       req.Draft,
		ActorID:     requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/invoices/"+invoice.ID)
	httpx.WriteJSON(w, http.StatusCreated, invoiceResponse{Invoice: invoice})
}

func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoice, err := h.invoices.GetInvoice(ctx, chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: invoice})
}

func (h *InvoiceHandlers) invoicePDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoiceID := chi.URLParam(r, "invoiceID")
	invoice, err := h.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	pdf, err := h.invoices.RenderPDF(ctx, invoiceID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+invoice.InvoiceNumber+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *InvoiceHandlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount is required", http.StatusBadRequest))
		return
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		method = domain.PaymentMethodOther
	}

	invoice, err := h.workflow.RecordPayment(ctx, services.RecordPaymentCommand{
		InvoiceID: chi.URLParam(r, "invoiceID"),
		Amount:    *req.Amount,
		Method:    method,
		Reference: strings.TrimSpace(req.Reference),
		Date:      req.Date,
		Notes:     req.Notes,
		ActorID:   requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, invoiceResponse{Invoice: invoice})
}

func (h *InvoiceHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req invoiceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	status := domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid invoice status", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.UpdateStatus(ctx, services.UpdateInvoiceStatusCommand{
		InvoiceID: chi.URLParam(r, "invoiceID"),
		Status:    status,
		ActorID:   requestctx.Actor(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: invoice})
}

func (h *InvoiceHandlers) refreshOverdue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	updated, err := h.invoices.RefreshOverdue(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
