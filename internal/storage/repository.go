package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoObservation indicates no observation exists for the requested chain/window.
	ErrNoObservation = errors.New("storage: no observation")
	// ErrAlertNotPending indicates the alert was missing or already triggered.
	ErrAlertNotPending = errors.New("storage: alert not pending")
)

const (
	insertObservationSQL = `INSERT INTO price_observations (
        chain,
        price_usd,
        observed_at
    ) VALUES (
        $1,$2,$3
    ) RETURNING id;`

	latestObservationSQL = `SELECT id, chain, price_usd, observed_at
    FROM price_observations
    WHERE chain = $1
    ORDER BY observed_at DESC
    LIMIT 1;`

	latestObservationBeforeSQL = `SELECT id, chain, price_usd, observed_at
    FROM price_observations
    WHERE chain = $1
      AND observed_at <= $2
    ORDER BY observed_at DESC
    LIMIT 1;`

	listObservationsSinceSQL = `SELECT id, chain, price_usd, observed_at
    FROM price_observations
    WHERE chain = $1
      AND observed_at >= $2
    ORDER BY observed_at DESC;`

	listObservationsBetweenSQL = `SELECT id, chain, price_usd, observed_at
    FROM price_observations
    WHERE chain = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentObservationsSQL = `SELECT id, chain, price_usd, observed_at
    FROM price_observations
    ORDER BY observed_at DESC
    LIMIT $1;`

	countObservationsSQL = `SELECT COUNT(*) FROM price_observations;`

	insertAlertSQL = `INSERT INTO price_alerts (
        chain,
        target_price,
        email
    ) VALUES (
        $1,$2,$3
    ) RETURNING id, chain, target_price, email, triggered, created_at;`

	listPendingAlertsSQL = `SELECT id, chain, target_price, email, triggered, created_at
    FROM price_alerts
    WHERE triggered = false
    ORDER BY id;`

	markAlertTriggeredSQL = `UPDATE price_alerts
    SET triggered = true
    WHERE id = $1
      AND triggered = false;`
)

// ObservationStore defines the persistence operations the tracker and read
// path need over the price observation log.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs PriceObservation) error
	LatestObservation(ctx context.Context, chain domain.Chain) (PriceObservation, error)
	LatestObservationBefore(ctx context.Context, chain domain.Chain, cutoff time.Time) (PriceObservation, error)
	ListObservationsSince(ctx context.Context, chain domain.Chain, since time.Time) ([]PriceObservation, error)
}

// AlertStore defines operations over registered price alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error)
	ListPendingAlerts(ctx context.Context) ([]PriceAlert, error)
	MarkAlertTriggered(ctx context.Context, id int64) error
}

// Store aggregates access to observations and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertObservation appends a price observation.
func (s *Store) InsertObservation(ctx context.Context, obs PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertObservationSQL,
		obs.Chain.String(),
		obs.Price.String(),
		observedAt,
	).Scan(&id); scanErr != nil {
		return fmt.Errorf("insert observation: %w", scanErr)
	}
	return nil
}

// LatestObservation returns the most recent observation for a chain.
func (s *Store) LatestObservation(ctx context.Context, chain domain.Chain) (PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, err
	}
	return scanObservationRow(pool.QueryRow(ctx, latestObservationSQL, chain.String()))
}

// LatestObservationBefore returns the most recent observation at or before cutoff.
func (s *Store) LatestObservationBefore(ctx context.Context, chain domain.Chain, cutoff time.Time) (PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, err
	}
	return scanObservationRow(pool.QueryRow(ctx, latestObservationBeforeSQL, chain.String(), cutoff))
}

// ListObservationsSince lists observations newer than since, newest first.
func (s *Store) ListObservationsSince(ctx context.Context, chain domain.Chain, since time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSinceSQL, chain.String(), since)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations since: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// ListObservationsBetween lists observations within a window, oldest first.
func (s *Store) ListObservationsBetween(ctx context.Context, chain domain.Chain, from, to time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, chain.String(), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// ListRecentObservations lists the most recent observations across all chains.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// CreateAlert persists a new pending alert and returns the stored record.
func (s *Store) CreateAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceAlert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Chain.String(),
		alert.TargetPrice.String(),
		alert.Email,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return PriceAlert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListPendingAlerts lists alerts that have not fired yet.
func (s *Store) ListPendingAlerts(ctx context.Context) ([]PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPendingAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]PriceAlert, 0)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// MarkAlertTriggered flips the triggered flag. The WHERE clause keeps the
// update atomic per row; a row that already fired is never touched again.
func (s *Store) MarkAlertTriggered(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markAlertTriggeredSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlertNotPending
	}
	return nil
}

func scanObservationRow(row pgx.Row) (PriceObservation, error) {
	var (
		id         int64
		chain      string
		priceStr   string
		observedAt time.Time
	)
	if err := row.Scan(&id, &chain, &priceStr, &observedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PriceObservation{}, ErrNoObservation
		}
		return PriceObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse price: %w", err)
	}

	return PriceObservation{
		ID:         id,
		Chain:      domain.Chain(chain),
		Price:      price,
		ObservedAt: observedAt,
	}, nil
}

func collectObservations(rows pgx.Rows) ([]PriceObservation, error) {
	observations := make([]PriceObservation, 0)
	for rows.Next() {
		obs, err := scanObservationRow(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanAlert(row pgx.Row) (PriceAlert, error) {
	var (
		rec       PriceAlert
		chain     string
		targetStr string
	)
	if err := row.Scan(
		&rec.ID,
		&chain,
		&targetStr,
		&rec.Email,
		&rec.Triggered,
		&rec.CreatedAt,
	); err != nil {
		return PriceAlert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return PriceAlert{}, fmt.Errorf("parse target price: %w", err)
	}

	rec.Chain = domain.Chain(chain)
	rec.TargetPrice = target
	return rec, nil
}

var (
	_ ObservationStore = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
)
