package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/config"
	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/storage"
	"token-price-tracker/internal/swap"
)

type stubObservationStore struct {
	mu        sync.Mutex
	result    []storage.PriceObservation
	lastChain domain.Chain
	lastSince time.Time
}

func (s *stubObservationStore) InsertObservation(context.Context, storage.PriceObservation) error {
	return nil
}

func (s *stubObservationStore) LatestObservation(context.Context, domain.Chain) (storage.PriceObservation, error) {
	return storage.PriceObservation{}, storage.ErrNoObservation
}

func (s *stubObservationStore) LatestObservationBefore(context.Context, domain.Chain, time.Time) (storage.PriceObservation, error) {
	return storage.PriceObservation{}, storage.ErrNoObservation
}

func (s *stubObservationStore) ListObservationsSince(_ context.Context, chain domain.Chain, since time.Time) ([]storage.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChain = chain
	s.lastSince = since
	return s.result, nil
}

type stubAlertStore struct {
	created []storage.PriceAlert
}

func (s *stubAlertStore) CreateAlert(_ context.Context, alert storage.PriceAlert) (storage.PriceAlert, error) {
	alert.ID = int64(len(s.created) + 1)
	s.created = append(s.created, alert)
	return alert, nil
}

func (s *stubAlertStore) ListPendingAlerts(context.Context) ([]storage.PriceAlert, error) {
	return nil, nil
}

func (s *stubAlertStore) MarkAlertTriggered(context.Context, int64) error {
	return nil
}

type stubQuoteFetcher struct {
	prices map[common.Address]decimal.Decimal
}

func (s *stubQuoteFetcher) FetchUSDPrice(_ context.Context, token common.Address) (decimal.Decimal, error) {
	return s.prices[token], nil
}

func newTestServer(obs *stubObservationStore, alerts *stubAlertStore) *Server {
	quoter := swap.NewQuoter(&stubQuoteFetcher{prices: map[common.Address]decimal.Decimal{
		domain.SwapTokenETH: decimal.NewFromInt(3000),
		domain.SwapTokenBTC: decimal.NewFromInt(60000),
	}}, zerolog.Nop())
	return New(config.ServerConfig{ListenAddr: ":0"}, obs, alerts, quoter, nil, zerolog.Nop())
}

func TestHourlyPricesRejectsUnknownChain(t *testing.T) {
	srv := newTestServer(&stubObservationStore{}, &stubAlertStore{})

	req := httptest.NewRequest(http.MethodGet, "/prices/solana/hourly", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for solana, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ethereum or polygon") {
		t.Fatalf("error message should name the supported chains, got %s", rec.Body.String())
	}
}

func TestHourlyPricesUses24hWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	obs := &stubObservationStore{result: []storage.PriceObservation{
		{ID: 2, Chain: domain.ChainEthereum, Price: decimal.NewFromInt(3100), ObservedAt: now.Add(-5 * time.Minute)},
		{ID: 1, Chain: domain.ChainEthereum, Price: decimal.NewFromInt(3000), ObservedAt: now.Add(-10 * time.Minute)},
	}}
	srv := newTestServer(obs, &stubAlertStore{})
	srv.now = func() time.Time { return now }

	req := httptest.NewRequest(http.MethodGet, "/prices/ethereum/hourly", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if obs.lastChain != domain.ChainEthereum {
		t.Fatalf("store queried with wrong chain %s", obs.lastChain)
	}
	if want := now.Add(-24 * time.Hour); !obs.lastSince.Equal(want) {
		t.Fatalf("store should be queried with a 24h cutoff, got %s", obs.lastSince)
	}

	var payload []observationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(payload))
	}
	if payload[0].ID != 2 || payload[1].ID != 1 {
		t.Fatalf("rows must keep store order (newest first), got %+v", payload)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad chain", `{"chain":"solana","targetPrice":100,"email":"user@example.com"}`},
		{"zero target", `{"chain":"ethereum","targetPrice":0,"email":"user@example.com"}`},
		{"negative target", `{"chain":"ethereum","targetPrice":-5,"email":"user@example.com"}`},
		{"bad email", `{"chain":"ethereum","targetPrice":100,"email":"not-an-email"}`},
		{"malformed body", `{"chain":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerts := &stubAlertStore{}
			srv := newTestServer(&stubObservationStore{}, alerts)

			req := httptest.NewRequest(http.MethodPost, "/prices/alerts", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if len(alerts.created) != 0 {
				t.Fatal("invalid request must not reach the store")
			}
		})
	}
}

func TestCreateAlertSuccess(t *testing.T) {
	alerts := &stubAlertStore{}
	srv := newTestServer(&stubObservationStore{}, alerts)

	body := `{"chain":"polygon","targetPrice":1.25,"email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/prices/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp alertResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Chain != "polygon" || resp.Email != "user@example.com" || resp.Triggered {
		t.Fatalf("unexpected created record %+v", resp)
	}
	if len(alerts.created) != 1 {
		t.Fatalf("expected one stored alert, got %d", len(alerts.created))
	}
	if !alerts.created[0].TargetPrice.Equal(decimal.NewFromFloat(1.25)) {
		t.Fatalf("stored target price mismatch: %s", alerts.created[0].TargetPrice)
	}
}

func TestSwapEndpoint(t *testing.T) {
	srv := newTestServer(&stubObservationStore{}, &stubAlertStore{})

	req := httptest.NewRequest(http.MethodPost, "/prices/swap", strings.NewReader(`{"ethAmount":10}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp swapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if math.Abs(resp.BTCAmount-0.49985) > 1e-12 {
		t.Fatalf("btcAmount should be 0.49985, got %v", resp.BTCAmount)
	}
	if math.Abs(resp.Fee.ETH-0.003) > 1e-12 || math.Abs(resp.Fee.USD-9) > 1e-9 {
		t.Fatalf("unexpected fee breakdown %+v", resp.Fee)
	}
}

func TestStatusRecorderUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	if wrapped.Unwrap() != rec {
		t.Fatal("Unwrap should return the underlying writer")
	}
}

type failingQuoteFetcher struct{}

func (failingQuoteFetcher) FetchUSDPrice(context.Context, common.Address) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("upstream down")
}

func TestSwapReportsBadGatewayOnUpstreamFailure(t *testing.T) {
	quoter := swap.NewQuoter(failingQuoteFetcher{}, zerolog.Nop())
	srv := New(config.ServerConfig{ListenAddr: ":0"}, &stubObservationStore{}, &stubAlertStore{}, quoter, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/prices/swap", strings.NewReader(`{"ethAmount":10}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when a quote leg fails, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "message") {
		t.Fatalf("error body should carry a message, got %s", rec.Body.String())
	}
}

func TestSwapRejectsNonPositiveAmount(t *testing.T) {
	srv := newTestServer(&stubObservationStore{}, &stubAlertStore{})

	req := httptest.NewRequest(http.MethodPost, "/prices/swap", strings.NewReader(`{"ethAmount":0}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
