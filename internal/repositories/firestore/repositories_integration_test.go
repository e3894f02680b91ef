//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pconfig "github.com/hanko-field/orderdesk/internal/platform/config"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorRegistry(t *testing.T, project string) (*Registry, *pfirestore.Provider) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: project, EmulatorHost: endpoint},
		pfirestore.WithReadinessCollections(ReadinessCollections...))
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	if err := provider.Ping(context.Background()); err != nil {
		t.Fatalf("ping empty collections: %v", err)
	}

	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry, provider
}

func TestCounterRepositoryIntegration(t *testing.T) {
	registry, _ := newEmulatorRegistry(t, "counter-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := registry.Counters().Next(ctx, "invoices:202410", 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if val != int64(i+1) {
			t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, val)
		}
	}
}

func TestOrderRepositoryVersioningIntegration(t *testing.T) {
	registry, _ := newEmulatorRegistry(t, "orders-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)
	order := domain.Order{
		ID:             "ord_1",
		OrderNumber:    "ORD-20241015-0001",
		ClientID:       "cli_ada",
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		ShippingMethod: domain.ShippingMethodDelivery,
		Items: []domain.OrderItem{{
			ProductID: "prod_tomato", Name: "Tomato", Quantity: 2,
			UnitPrice: decimal.RequireFromString("10"), LineTotal: decimal.RequireFromString("20"),
		}},
		Subtotal:           decimal.RequireFromString("20"),
		ShippingCost:       domain.Pending(),
		TotalAmount:        domain.Pending(),
		DeliveryFeePending: true,
		StatusHistory:      []domain.StatusEntry{{Status: domain.OrderStatusPending, Timestamp: now, Note: "created"}},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	orders := registry.Orders()
	if err := orders.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := orders.Insert(ctx, order); !isConflict(err) {
		t.Fatalf("expected duplicate insert conflict, got %v", err)
	}

	stored, err := orders.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.TotalAmount.IsPending() || !stored.ShippingCost.IsPending() {
		t.Fatalf("expected pending amounts to survive persistence, got %+v", stored)
	}

	stored.Status = domain.OrderStatusProcessing
	if err := orders.Update(ctx, stored, 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := orders.Update(ctx, stored, 0); !isConflict(err) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	count, err := orders.CountCreatedBetween(ctx, now.Truncate(24*time.Hour), now.Truncate(24*time.Hour).Add(24*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one order today, got %d", count)
	}

	if err := orders.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := orders.FindByID(ctx, order.ID); !isNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestInvoiceRepositoryNumberUniquenessIntegration(t *testing.T) {
	registry, _ := newEmulatorRegistry(t, "invoices-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)
	invoice := domain.Invoice{
		ID:            "inv_1",
		InvoiceNumber: "INV-24-10-0001",
		Type:          domain.InvoiceTypeOrderBased,
		OrderID:       "ord_1",
		ClientID:      "cli_ada",
		Currency:      "USD",
		TotalAmount:   decimal.RequireFromString("25"),
		IssueDate:     now,
		DueDate:       now.AddDate(0, 0, 7),
		Status:        domain.InvoiceStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	invoices := registry.Invoices()
	if err := invoices.Insert(ctx, invoice); err != nil {
		t.Fatalf("insert: %v", err)
	}

	duplicate := invoice
	duplicate.ID = "inv_2"
	duplicate.OrderID = "ord_2"
	err := invoices.Insert(ctx, duplicate)
	if !isConflict(err) {
		t.Fatalf("expected duplicate number conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "already belongs to inv_1") {
		t.Fatalf("expected the owning invoice in %q", err)
	}

	found, err := invoices.FindByOrderID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find by order: %v", err)
	}
	if !found.TotalAmount.Equal(invoice.TotalAmount) {
		t.Fatalf("unexpected total %s", found.TotalAmount)
	}

	if err := invoices.SetPDFObject(ctx, invoice.ID, "invoices/INV-24-10-0001/invoice.pdf"); err != nil {
		t.Fatalf("set pdf: %v", err)
	}
	linked, err := invoices.FindByID(ctx, invoice.ID)
	if err != nil || linked.Version != invoice.Version || linked.PDFObject == "" {
		t.Fatalf("pdf link must not bump the version: %+v (%v)", linked, err)
	}

	highest, err := invoices.HighestNumberWithPrefix(ctx, "INV-24-10-")
	if err != nil || highest != "INV-24-10-0001" {
		t.Fatalf("expected INV-24-10-0001, got %q (%v)", highest, err)
	}

	if err := invoices.Delete(ctx, invoice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := invoices.Insert(ctx, duplicate); err != nil {
		t.Fatalf("number should be free after delete: %v", err)
	}
}

func TestRegistryRunInTxRevertsStock(t *testing.T) {
	registry, provider := newEmulatorRegistry(t, "stock-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	seed := func(id string, stock int) {
		if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, productDocument{Name: id, Price: 10, StockQuantity: stock, IsAvailable: true}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("prod_tomato", 5)
	seed("prod_basil", 1)

	err = registry.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := registry.Products().AdjustStock(ctx, "prod_tomato", -3); err != nil {
			return err
		}
		_, err := registry.Products().AdjustStock(ctx, "prod_basil", -2)
		return err
	})
	if !isConflict(err) {
		t.Fatalf("expected stock conflict, got %v", err)
	}

	tomato, err := registry.Products().FindByID(ctx, "prod_tomato")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tomato.StockQuantity != 5 {
		t.Fatalf("expected tomato stock restored to 5, got %d", tomato.StockQuantity)
	}
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
