package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultMoralisBaseURL = "https://deep-index.moralis.io/api/v2.2"

// MoralisOptions parameterise the Moralis price API client.
type MoralisOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Moralis fetches ERC-20 token USD prices from the Moralis deep-index API.
type Moralis struct {
	opts    MoralisOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMoralis constructs a Moralis price fetcher.
func NewMoralis(opts MoralisOptions, logger zerolog.Logger) *Moralis {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultMoralisBaseURL
	}

	return &Moralis{
		opts:    opts,
		logger:  logger.With().Str("component", "moralis_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchUSDPrice retrieves the current USD price for a token contract.
func (m *Moralis) FetchUSDPrice(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	if m.opts.APIKey == "" {
		return decimal.Decimal{}, errors.New("moralis api key not configured")
	}

	endpoint := fmt.Sprintf("%s/erc20/%s/price", m.baseURL, strings.ToLower(token.Hex()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("X-API-Key", m.opts.APIKey)
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	var priceRes priceResponse
	if err := json.Unmarshal(payload, &priceRes); err != nil {
		return decimal.Decimal{}, err
	}
	if priceRes.USDPrice == "" {
		return decimal.Decimal{}, errors.New("response missing usdPrice")
	}

	price, err := decimal.NewFromString(priceRes.USDPrice.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse usd price: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, errors.New("usd price must be positive")
	}

	m.logger.Debug().
		Str("token", token.Hex()).
		Str("usd_price", price.String()).
		Msg("quote fetched")

	return price, nil
}

type priceResponse struct {
	USDPrice       json.Number `json:"usdPrice"`
	TokenSymbol    string      `json:"tokenSymbol"`
	ExchangeName   string      `json:"exchangeName"`
	BlockTimestamp string      `json:"blockTimestamp"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("moralis api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("moralis api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("moralis api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("moralis api error (%d)", status)
}

var _ QuoteFetcher = (*Moralis)(nil)
