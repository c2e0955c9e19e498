package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"token-price-tracker/internal/config"
	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/fetcher"
	"token-price-tracker/internal/notify"
	"token-price-tracker/internal/scheduler"
	"token-price-tracker/internal/server"
	"token-price-tracker/internal/storage"
	"token-price-tracker/internal/swap"
	"token-price-tracker/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.QuoteFetcher {
	return fetcher.NewMoralis(fetcher.MoralisOptions{
		BaseURL:   a.Config.Moralis.BaseURL,
		APIKey:    a.Config.Moralis.APIKey,
		Timeout:   a.Config.Moralis.RequestTimeout,
		UserAgent: a.Config.Moralis.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() (notify.Notifier, error) {
	if !a.Config.SMTP.Enabled {
		return nil, nil
	}
	cfg := a.Config.SMTP
	return notify.NewSMTPNotifier(notify.SMTPOptions{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		StartTLS: cfg.StartTLS,
		Timeout:  cfg.Timeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running tracker plus the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	if notifier == nil {
		a.Logger.Warn().Msg("smtp disabled; notifications will be skipped")
	}

	quotes := a.newFetcher()

	trk := tracker.New(tracker.Options{
		Chains:            domain.Tracked(),
		SpikeThresholdPct: a.Config.Tracker.SpikeThresholdPct,
		SpikeWindow:       a.Config.Tracker.SpikeWindow,
		OpsEmail:          a.Config.Tracker.OpsEmail,
	}, store, store, quotes, notifier, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	quoter := swap.NewQuoter(quotes, a.Logger)
	srv := server.New(a.Config.Server, store, store, quoter, store, a.Logger)

	a.Logger.Info().Msg("starting tracker and http api")

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- sched.Run(runCtx, trk.ProcessCycle)
	}()
	go func() {
		defer wg.Done()
		errCh <- srv.Run(runCtx)
	}()

	err = <-errCh
	stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	Chain     domain.Chain
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
