package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
)

// PriceObservation is one recorded USD price for a chain. Rows are append-only;
// ObservedAt is set at insertion and never changes.
type PriceObservation struct {
	ID         int64
	Chain      domain.Chain
	Price      decimal.Decimal
	ObservedAt time.Time
}

// PriceAlert is a user request to be notified once a chain reaches a target
// price. The triggered flag flips exactly once.
type PriceAlert struct {
	ID          int64
	Chain       domain.Chain
	TargetPrice decimal.Decimal
	Email       string
	Triggered   bool
	CreatedAt   time.Time
}
