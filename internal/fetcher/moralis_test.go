package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
)

func TestMoralisMissingAPIKey(t *testing.T) {
	m := NewMoralis(MoralisOptions{}, noopLogger())
	if _, err := m.FetchUSDPrice(context.Background(), domain.ChainEthereum.TokenAddress()); err == nil {
		t.Fatal("缺少 API key 时应返回错误")
	}
}

func TestMoralisFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid api key"})
	}))
	defer srv.Close()

	m := NewMoralis(MoralisOptions{
		BaseURL: srv.URL,
		APIKey:  "key",
		Timeout: time.Second,
	}, noopLogger())

	if _, err := m.FetchUSDPrice(context.Background(), domain.ChainEthereum.TokenAddress()); err == nil {
		t.Fatal("HTTP 401 应返回错误")
	}
}

func TestMoralisFetchSuccess(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usdPrice": 3123.456789, "tokenSymbol": "WETH"}`))
	}))
	defer srv.Close()

	m := NewMoralis(MoralisOptions{
		BaseURL:   srv.URL,
		APIKey:    "key",
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())

	price, err := m.FetchUSDPrice(context.Background(), domain.ChainEthereum.TokenAddress())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("3123.456789")) {
		t.Fatalf("期望价格 3123.456789, 实际 %s", price.String())
	}
	if gotKey != "key" {
		t.Fatalf("X-API-Key header missing, got %q", gotKey)
	}
	if !strings.HasSuffix(gotPath, "/price") || !strings.Contains(gotPath, "/erc20/") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestMoralisRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"usdPrice": 0}`))
	}))
	defer srv.Close()

	m := NewMoralis(MoralisOptions{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second}, noopLogger())
	if _, err := m.FetchUSDPrice(context.Background(), domain.ChainPolygon.TokenAddress()); err == nil {
		t.Fatal("usdPrice=0 应返回错误")
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
