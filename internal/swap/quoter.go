package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/fetcher"
)

// feeRate is the fixed conversion fee, 0.03% of the input amount.
var feeRate = decimal.New(3, -4)

// Quote is the result of an ETH to BTC conversion estimate.
type Quote struct {
	BTCAmount decimal.Decimal
	FeeETH    decimal.Decimal
	FeeUSD    decimal.Decimal
}

// Quoter computes ETH→BTC swap estimates from live USD quotes. It holds no
// state; both legs are fetched fresh on every call.
type Quoter struct {
	quotes fetcher.QuoteFetcher
	logger zerolog.Logger
}

// NewQuoter constructs a swap quoter.
func NewQuoter(quotes fetcher.QuoteFetcher, logger zerolog.Logger) *Quoter {
	return &Quoter{
		quotes: quotes,
		logger: logger.With().Str("component", "swap_quoter").Logger(),
	}
}

// QuoteETHToBTC returns the BTC amount for the given ETH amount after the
// fixed fee. Either leg failing fails the whole quote; no partial result.
func (q *Quoter) QuoteETHToBTC(ctx context.Context, ethAmount decimal.Decimal) (Quote, error) {
	if !ethAmount.IsPositive() {
		return Quote{}, errors.New("eth amount must be greater than zero")
	}

	ethPrice, err := q.quotes.FetchUSDPrice(ctx, domain.SwapTokenETH)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch eth quote: %w", err)
	}
	btcPrice, err := q.quotes.FetchUSDPrice(ctx, domain.SwapTokenBTC)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch btc quote: %w", err)
	}
	if btcPrice.IsZero() {
		return Quote{}, errors.New("btc quote returned zero")
	}

	fee := ethAmount.Mul(feeRate)
	feeUSD := fee.Mul(ethPrice)
	btcAmount := ethAmount.Sub(fee).Mul(ethPrice).Div(btcPrice)

	q.logger.Debug().
		Str("eth_amount", ethAmount.String()).
		Str("btc_amount", btcAmount.String()).
		Str("fee_eth", fee.String()).
		Msg("swap quoted")

	return Quote{
		BTCAmount: btcAmount,
		FeeETH:    fee,
		FeeUSD:    feeUSD,
	}, nil
}
