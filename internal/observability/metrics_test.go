package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func shutdownQuietly(t *testing.T, shutdown func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestInitMetricsServesScrapeEndpoint(t *testing.T) {
	handler, shutdown, err := InitMetrics("baton-controller")
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	defer shutdownQuietly(t, shutdown)

	if handler == nil {
		t.Fatal("got nil scrape handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() == 0 {
		t.Fatal("scrape body is empty")
	}
}

func TestInitMetricsExposesRegisteredInstruments(t *testing.T) {
	handler, shutdown, err := InitMetrics("baton-controller")
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	defer shutdownQuietly(t, shutdown)

	// Instruments go through the global provider, the same path the
	// controller's job gauges take.
	meter := otel.Meter("baton-controller")
	claims, err := meter.Int64Counter("baton_jobs_claimed")
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	claims.Add(context.Background(), 7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "baton_jobs_claimed") {
		t.Errorf("scrape output missing baton_jobs_claimed:\n%s", body)
	}
	if !strings.Contains(body, "7") {
		t.Errorf("scrape output missing counter value 7:\n%s", body)
	}
}
