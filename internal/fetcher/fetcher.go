package fetcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// QuoteFetcher retrieves the current USD price for an ERC-20 token.
type QuoteFetcher interface {
	FetchUSDPrice(ctx context.Context, token common.Address) (decimal.Decimal, error)
}
