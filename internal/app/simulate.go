package app

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/fetcher"
	"token-price-tracker/internal/storage"
	"token-price-tracker/internal/tracker"
)

// SimulateSpike 用给定的一小时前/当前价格走一遍真实的告警链路，
// 不写数据库，用于验证 SMTP 配置。
func (a *App) SimulateSpike(ctx context.Context, chain domain.Chain, oldPrice, newPrice decimal.Decimal) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	if notifier == nil {
		return errors.New("smtp 未启用，无法模拟告警")
	}

	window := a.Config.Tracker.SpikeWindow
	if window <= 0 {
		window = time.Hour
	}

	observations := &memObservationStore{}
	seed := storage.PriceObservation{
		Chain:      chain,
		Price:      oldPrice,
		ObservedAt: time.Now().UTC().Add(-window - time.Minute),
	}
	if err := observations.InsertObservation(ctx, seed); err != nil {
		return err
	}

	trk := tracker.New(tracker.Options{
		Chains:            []domain.Chain{chain},
		SpikeThresholdPct: a.Config.Tracker.SpikeThresholdPct,
		SpikeWindow:       window,
		OpsEmail:          a.Config.Tracker.OpsEmail,
	}, observations, nil, &staticQuoteFetcher{price: newPrice}, notifier, a.Logger)

	return trk.ProcessCycle(ctx, time.Now().UTC())
}

// memObservationStore is a throwaway in-memory store for simulation runs.
type memObservationStore struct {
	observations []storage.PriceObservation
}

func (m *memObservationStore) InsertObservation(_ context.Context, obs storage.PriceObservation) error {
	obs.ID = int64(len(m.observations) + 1)
	m.observations = append(m.observations, obs)
	return nil
}

func (m *memObservationStore) LatestObservation(_ context.Context, chain domain.Chain) (storage.PriceObservation, error) {
	var best *storage.PriceObservation
	for i := range m.observations {
		obs := &m.observations[i]
		if obs.Chain != chain {
			continue
		}
		if best == nil || obs.ObservedAt.After(best.ObservedAt) {
			best = obs
		}
	}
	if best == nil {
		return storage.PriceObservation{}, storage.ErrNoObservation
	}
	return *best, nil
}

func (m *memObservationStore) LatestObservationBefore(_ context.Context, chain domain.Chain, cutoff time.Time) (storage.PriceObservation, error) {
	var best *storage.PriceObservation
	for i := range m.observations {
		obs := &m.observations[i]
		if obs.Chain != chain || obs.ObservedAt.After(cutoff) {
			continue
		}
		if best == nil || obs.ObservedAt.After(best.ObservedAt) {
			best = obs
		}
	}
	if best == nil {
		return storage.PriceObservation{}, storage.ErrNoObservation
	}
	return *best, nil
}

func (m *memObservationStore) ListObservationsSince(_ context.Context, chain domain.Chain, since time.Time) ([]storage.PriceObservation, error) {
	result := make([]storage.PriceObservation, 0)
	for _, obs := range m.observations {
		if obs.Chain == chain && !obs.ObservedAt.Before(since) {
			result = append(result, obs)
		}
	}
	return result, nil
}

type staticQuoteFetcher struct {
	price decimal.Decimal
}

func (s *staticQuoteFetcher) FetchUSDPrice(context.Context, common.Address) (decimal.Decimal, error) {
	return s.price, nil
}

var (
	_ storage.ObservationStore = (*memObservationStore)(nil)
	_ fetcher.QuoteFetcher     = (*staticQuoteFetcher)(nil)
)
