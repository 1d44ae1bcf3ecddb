package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bazaar/internal/platform/config"
)

func TestBuildAPIWithConfigUsesMemoryRuntimeWithoutDSN(t *testing.T) {
	cfg := config.Default()
	cfg.PostgresDSN = ""

	app, err := BuildAPIWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.relay == nil {
		t.Fatalf("expected embedded outbox relay in memory runtime")
	}
	if app.postgres != nil {
		t.Fatalf("expected no postgres connection in memory runtime")
	}
	if app.activity == nil {
		t.Fatalf("expected activity consumer on the in-process bus")
	}

	handler := app.Handler()
	send := func(method string, path string, caller string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		if caller != "" {
			req.Header.Set("X-User-Id", caller)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(http.MethodPost, "/v1/listings", "alice", `{"title":"Lamp","details":"brass","price":100}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := send(http.MethodPost, "/v1/listings/1/purchase", "bob", `{"amount_sent":150}`); rr.Code != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	if err := app.relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay run: %v", err)
	}

	rr := send(http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"listing_ledger_listings_created_total 1",
		"listing_ledger_purchases_completed_total 1",
		"listing_ledger_seller_paid_units_total 100",
		"listing_ledger_refund_issued_units_total 50",
		"listing_ledger_outbox_published_total 2",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}

func TestBuildAPIWithConfigDisablesMetricsRoute(t *testing.T) {
	cfg := config.Default()
	cfg.EnableMetrics = false

	app, err := BuildAPIWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	defer func() { _ = app.Close() }()

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rr.Code)
	}
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9000":  ":9000",
		":7000": ":7000",
		" 81 ":  ":81",
	}
	for input, want := range cases {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestActivityConsumerSkippedForWriteOnlyBrokers(t *testing.T) {
	cfg := config.Default()
	cfg.EventBroker = config.BrokerKafka

	app, err := BuildAPIWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.activity != nil {
		t.Fatalf("kafka publisher cannot be subscribed to in-process")
	}
}
