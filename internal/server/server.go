// Package server assembles the HTTP control plane and its background
// upkeep into one runnable unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oneone404/One-Shield-sub000/internal/api"
	"github.com/oneone404/One-Shield-sub000/internal/auth"
	"github.com/oneone404/One-Shield-sub000/internal/config"
	"github.com/oneone404/One-Shield-sub000/internal/metrics"
	"github.com/oneone404/One-Shield-sub000/internal/store"
)

const (
	// staleAfter is how long an endpoint may miss heartbeats before the
	// sweeper flips it offline. Agents heartbeat every minute by default.
	staleAfter    = 5 * time.Minute
	sweepInterval = time.Minute

	shutdownTimeout = 30 * time.Second
)

// Server owns the HTTP listener and the stale-endpoint sweeper.
type Server struct {
	cfg   *config.Config
	store *store.Store
	http  *http.Server
}

// New wires the API router onto an http.Server. ReadHeaderTimeout rather
// than ReadTimeout, so a slow report download never hits a connection
// deadline set before the handler ran.
func New(cfg *config.Config, st *store.Store, version string) *Server {
	handler := api.NewRouter(api.Deps{
		Config:  cfg,
		Store:   st,
		JWT:     auth.NewJWT(cfg.JWTSecret, cfg.JWTLifetime()),
		Version: version,
	})
	return &Server{
		cfg:   cfg,
		store: st,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Run serves until ctx is canceled, then drains connections for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepLoop(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.cfg.Port).Msg("Server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// sweepLoop periodically marks silent endpoints offline and refreshes the
// fleet gauges.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	marked, err := s.store.MarkStaleEndpointsOffline(ctx, time.Now().UTC().Add(-staleAfter))
	if err != nil {
		log.Warn().Err(err).Msg("Stale endpoint sweep failed")
		return
	}
	if marked > 0 {
		metrics.RecordStaleMarked(marked)
		log.Info().Int64("endpoints", marked).Msg("Marked stale endpoints offline")
	}

	total, online, err := s.store.CountFleetByStatus(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Fleet count failed")
		return
	}
	metrics.UpdateEndpointCounts(total, online)
}
