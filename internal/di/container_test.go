package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/config"
	"github.com/hanko-field/orderdesk/internal/platform/health"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
	"github.com/hanko-field/orderdesk/internal/services"
)

type captureTransport struct {
	mu       sync.Mutex
	messages []services.Message
}

func (t *captureTransport) Send(_ context.Context, msg services.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
	return nil
}

func (t *captureTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

type staticRenderer struct{}

func (staticRenderer) Render(_ context.Context, invoice domain.Invoice) ([]byte, error) {
	return []byte("%PDF-" + invoice.InvoiceNumber), nil
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{WriteTimeout: 5 * time.Second},
		Mail:   config.MailConfig{AdminEmails: []string{"ops@example.com"}},
		Notify: config.NotifyConfig{MaxAttempts: 1, Timeout: time.Second},
		Orders: config.OrderConfig{
			InvoiceDueDays:    7,
			LowStockThreshold: 2,
			Currency:          "USD",
			Numbering:         config.NumberingCounter,
		},
	}
}

func TestContainerServesOrderFlow(t *testing.T) {
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: "prod_basil", Name: "Basil", Price: decimal.NewFromInt(5), StockQuantity: 6, IsAvailable: true})
	store.PutClient(domain.ClientSnapshot{ID: "cli_ada", Name: "Ada Market", Email: "ada@example.com"})

	transport := &captureTransport{}
	container, err := NewContainer(context.Background(), testConfig(), store, Infrastructure{
		Renderer: staticRenderer{},
		Mail:     transport,
	})
	require.NoError(t, err)
	require.NotNil(t, container.Services.Documents)
	require.NotNil(t, container.Services.Notifications)

	router := container.Router()
	body := `{"clientId":"cli_ada","items":[{"productId":"prod_basil","quantity":2}],"shippingMethod":"pickup"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("X-Actor-ID", "staff_1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Order domain.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Order.InvoiceID)
	require.NotEmpty(t, created.Order.StatusHistory)
	assert.Equal(t, "staff_1", created.Order.StatusHistory[0].Actor)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, container.Close(ctx))
	assert.GreaterOrEqual(t, transport.count(), 2, "client and admin notifications")
}

func TestContainerReadinessUsesProbes(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(), memory.NewStore(), Infrastructure{
		Probes: []health.Probe{{
			Name:    "firestore",
			Timeout: time.Second,
			Check:   func(context.Context) error { return context.DeadlineExceeded },
		}},
	})
	require.NoError(t, err)
	assert.Nil(t, container.Services.Documents)
	assert.Nil(t, container.Services.Notifications)

	rr := httptest.NewRecorder()
	container.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	container.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), nil, Infrastructure{})
	require.EqualError(t, err, "repositories registry is required")
}
