package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-price-tracker/internal/config"
	"token-price-tracker/internal/domain"
	"token-price-tracker/internal/storage"
	"token-price-tracker/internal/swap"
)

// Pinger reports backing-store health for the liveness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the read path and alert registration over HTTP.
type Server struct {
	cfg          config.ServerConfig
	observations storage.ObservationStore
	alerts       storage.AlertStore
	quoter       *swap.Quoter
	pinger       Pinger
	logger       zerolog.Logger
	now          func() time.Time
}

// New constructs the HTTP server.
func New(cfg config.ServerConfig, observations storage.ObservationStore, alerts storage.AlertStore, quoter *swap.Quoter, pinger Pinger, logger zerolog.Logger) *Server {
	return &Server{
		cfg:          cfg,
		observations: observations,
		alerts:       alerts,
		quoter:       quoter,
		pinger:       pinger,
		logger:       logger.With().Str("component", "http_server").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /prices/{chain}/hourly", s.handleHourlyPrices)
	mux.HandleFunc("POST /prices/alerts", s.handleCreateAlert)
	mux.HandleFunc("POST /prices/swap", s.handleSwap)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s.withAccessLog(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return ctx.Err()
}

type observationResponse struct {
	ID        int64   `json:"id"`
	Chain     string  `json:"chain"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func (s *Server) handleHourlyPrices(w http.ResponseWriter, r *http.Request) {
	chain, err := domain.ParseChain(r.PathValue("chain"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := s.now().Add(-24 * time.Hour)
	observations, err := s.observations.ListObservationsSince(r.Context(), chain, since)
	if err != nil {
		s.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to list observations")
		s.writeError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	payload := make([]observationResponse, 0, len(observations))
	for _, obs := range observations {
		payload = append(payload, observationResponse{
			ID:        obs.ID,
			Chain:     obs.Chain.String(),
			Price:     obs.Price.InexactFloat64(),
			Timestamp: obs.ObservedAt.UTC().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, payload)
}

type createAlertRequest struct {
	Chain       string  `json:"chain"`
	TargetPrice float64 `json:"targetPrice"`
	Email       string  `json:"email"`
}

type alertResponse struct {
	ID          int64   `json:"id"`
	Chain       string  `json:"chain"`
	TargetPrice float64 `json:"targetPrice"`
	Email       string  `json:"email"`
	Triggered   bool    `json:"triggered"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	chain, err := domain.ParseChain(req.Chain)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetPrice <= 0 {
		s.writeError(w, http.StatusBadRequest, "targetPrice must be greater than zero")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.writeError(w, http.StatusBadRequest, "email is not a valid address")
		return
	}

	created, err := s.alerts.CreateAlert(r.Context(), storage.PriceAlert{
		Chain:       chain,
		TargetPrice: decimal.NewFromFloat(req.TargetPrice),
		Email:       req.Email,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("chain", chain.String()).Msg("failed to create alert")
		s.writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}

	s.writeJSON(w, http.StatusCreated, alertResponse{
		ID:          created.ID,
		Chain:       created.Chain.String(),
		TargetPrice: created.TargetPrice.InexactFloat64(),
		Email:       created.Email,
		Triggered:   created.Triggered,
	})
}

type swapRequest struct {
	EthAmount float64 `json:"ethAmount"`
}

type swapResponse struct {
	BTCAmount float64 `json:"btcAmount"`
	Fee       struct {
		ETH float64 `json:"eth"`
		USD float64 `json:"usd"`
	} `json:"fee"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.EthAmount <= 0 {
		s.writeError(w, http.StatusBadRequest, "ethAmount must be greater than zero")
		return
	}

	quote, err := s.quoter.QuoteETHToBTC(r.Context(), decimal.NewFromFloat(req.EthAmount))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to quote swap")
		s.writeError(w, http.StatusBadGateway, "failed to fetch swap quotes")
		return
	}

	var resp swapResponse
	resp.BTCAmount = quote.BTCAmount.InexactFloat64()
	resp.Fee.ETH = quote.FeeETH.InexactFloat64()
	resp.Fee.USD = quote.FeeUSD.InexactFloat64()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach Flusher/Hijacker on the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}
