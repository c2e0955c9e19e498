package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/fetcher"
	"token-price-tracker/internal/notify"
	"token-price-tracker/internal/storage"
)

var dec100 = decimal.NewFromInt(100)

// Options parameterise the tracker cycle.
type Options struct {
	Chains            []domain.Chain
	SpikeThresholdPct float64
	SpikeWindow       time.Duration
	OpsEmail          string
}

// Tracker runs the fetch-store-evaluate cycle over the tracked chains. It has
// no state of its own beyond what it reads and writes through the stores.
type Tracker struct {
	observations storage.ObservationStore
	alerts       storage.AlertStore
	quotes       fetcher.QuoteFetcher
	notifier     notify.Notifier
	logger       zerolog.Logger

	chains         []domain.Chain
	spikeThreshold decimal.Decimal
	spikeWindow    time.Duration
	opsEmail       string

	cycleMu sync.Mutex
	now     func() time.Time
}

// New constructs the tracker.
func New(opts Options, observations storage.ObservationStore, alerts storage.AlertStore, quotes fetcher.QuoteFetcher, notifier notify.Notifier, logger zerolog.Logger) *Tracker {
	chains := opts.Chains
	if len(chains) == 0 {
		chains = domain.Tracked()
	}

	window := opts.SpikeWindow
	if window <= 0 {
		window = time.Hour
	}

	return &Tracker{
		observations:   observations,
		alerts:         alerts,
		quotes:         quotes,
		notifier:       notifier,
		logger:         logger.With().Str("component", "tracker").Logger(),
		chains:         chains,
		spikeThreshold: decimal.NewFromFloat(opts.SpikeThresholdPct),
		spikeWindow:    window,
		opsEmail:       opts.OpsEmail,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ProcessCycle runs one fetch-store-evaluate pass. A tick that arrives while a
// previous cycle is still running is skipped, not queued. Nothing in a cycle
// is fatal; failures are logged per chain or per alert and the cycle goes on.
func (t *Tracker) ProcessCycle(ctx context.Context, tick time.Time) error {
	if !t.cycleMu.TryLock() {
		t.logger.Warn().Time("tick", tick).Msg("previous cycle still running; skipping tick")
		return nil
	}
	defer t.cycleMu.Unlock()

	t.fetchAndStoreAll(ctx)
	t.detectSpikes(ctx)
	t.evaluateAlerts(ctx)
	return nil
}

// fetchAndStoreAll fans out one fetch-and-persist task per chain and joins
// before returning, so the evaluation steps see freshly written data. Each
// chain carries its own failure boundary.
func (t *Tracker) fetchAndStoreAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, chain := range t.chains {
		wg.Add(1)
		go func(chain domain.Chain) {
			defer wg.Done()
			if err := t.fetchAndStore(ctx, chain); err != nil {
				t.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to record price")
			}
		}(chain)
	}
	wg.Wait()
}

func (t *Tracker) fetchAndStore(ctx context.Context, chain domain.Chain) error {
	price, err := t.quotes.FetchUSDPrice(ctx, chain.TokenAddress())
	if err != nil {
		return fmt.Errorf("fetch %s price: %w", chain, err)
	}

	obs := storage.PriceObservation{
		Chain:      chain,
		Price:      price,
		ObservedAt: t.now(),
	}
	if err := t.observations.InsertObservation(ctx, obs); err != nil {
		return fmt.Errorf("store %s observation: %w", chain, err)
	}

	t.logger.Debug().
		Str("chain", chain.String()).
		Str("price_usd", price.String()).
		Msg("observation recorded")
	return nil
}

// detectSpikes compares each chain's latest observation against the newest one
// at or before now minus the spike window. Only increases above the threshold
// fire; missing history is a silent skip.
func (t *Tracker) detectSpikes(ctx context.Context) {
	if t.notifier == nil || t.opsEmail == "" {
		return
	}

	cutoff := t.now().Add(-t.spikeWindow)
	for _, chain := range t.chains {
		latest, err := t.observations.LatestObservation(ctx, chain)
		if errors.Is(err, storage.ErrNoObservation) {
			continue
		}
		if err != nil {
			t.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to load latest observation")
			continue
		}

		old, err := t.observations.LatestObservationBefore(ctx, chain, cutoff)
		if errors.Is(err, storage.ErrNoObservation) {
			continue
		}
		if err != nil {
			t.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to load reference observation")
			continue
		}
		if old.Price.IsZero() {
			continue
		}

		change := latest.Price.Sub(old.Price).Div(old.Price).Mul(dec100)
		if !change.GreaterThan(t.spikeThreshold) {
			continue
		}

		msg := notify.Message{
			To:      t.opsEmail,
			Subject: fmt.Sprintf("%s Price Alert", chain),
			Body:    fmt.Sprintf("%s price has increased by %s%% in the last hour", chain, change.StringFixed(2)),
		}
		if err := t.notifier.Notify(ctx, msg); err != nil {
			t.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to dispatch spike notification")
			continue
		}

		t.logger.Info().
			Str("chain", chain.String()).
			Str("change_pct", change.StringFixed(2)).
			Msg("spike notification sent")
	}
}

// evaluateAlerts fires every pending alert whose chain has reached its target.
// Policy: notify first, mark triggered only after a successful send, so an
// undelivered alert stays pending and the next cycle retries it.
func (t *Tracker) evaluateAlerts(ctx context.Context) {
	if t.alerts == nil {
		return
	}

	alerts, err := t.alerts.ListPendingAlerts(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to list pending alerts")
		return
	}

	for _, alert := range alerts {
		latest, err := t.observations.LatestObservation(ctx, alert.Chain)
		if errors.Is(err, storage.ErrNoObservation) {
			continue
		}
		if err != nil {
			t.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to load latest observation")
			continue
		}
		if latest.Price.LessThan(alert.TargetPrice) {
			continue
		}

		if t.notifier == nil {
			t.logger.Warn().Int64("alert_id", alert.ID).Msg("alert reached target but no notifier configured")
			continue
		}

		msg := notify.Message{
			To:      alert.Email,
			Subject: "Price Alert Triggered",
			Body:    fmt.Sprintf("%s has reached your target price of $%s", alert.Chain, alert.TargetPrice.String()),
		}
		if err := t.notifier.Notify(ctx, msg); err != nil {
			t.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to dispatch alert; will retry next cycle")
			continue
		}

		if err := t.alerts.MarkAlertTriggered(ctx, alert.ID); err != nil {
			t.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to mark alert triggered")
			continue
		}

		t.logger.Info().
			Int64("alert_id", alert.ID).
			Str("chain", alert.Chain.String()).
			Str("target_price", alert.TargetPrice.String()).
			Msg("price alert fired")
	}
}
