package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

func TestRequestLoggerRecordsRouteAndStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(TraceMiddleware("od-test", nil))
	router.Use(RequestLoggerMiddleware())
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		if requestctx.Logger(r.Context()) == requestctx.NoopLogger() {
			t.Errorf("expected request logger on context")
		}
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/orders/{orderID}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("expected 404 status, got %v", fields["status"])
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entries[0].Level)
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestCloudTraceHeaderRoundTrip(t *testing.T) {
	spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if !spanCtx.IsSampled() || !spanCtx.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	formatted := formatCloudTraceHeader(requestctx.TraceInfo{
		TraceID: spanCtx.TraceID().String(),
		SpanID:  spanCtx.SpanID().String(),
		Sampled: true,
	})
	if formatted != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("unexpected formatted header %s", formatted)
	}

	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000/zz"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}

func TestLogSafeStripsControlCharacters(t *testing.T) {
	if got := logSafe("ord_1\n{\"level\":\"error\"}", actorRunes); got != "ord_1{\"level\":\"error\"}" {
		t.Fatalf("expected newline dropped, got %q", got)
	}
	if got := logSafe("請求書請求書", 3); got != "請求書" {
		t.Fatalf("expected three runes, got %q", got)
	}
	if routeLabel("") != "/" {
		t.Fatalf("empty route must render as root")
	}
}
