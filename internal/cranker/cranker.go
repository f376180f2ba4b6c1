// =================================
// File: internal/cranker/cranker.go
// =================================
// Package cranker runs the permissionless settlement loop: it polls the
// engine for matured locks and claims them on behalf of the locked users in
// exchange for the per-claim reward.
package cranker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uponlylabs/uponly-engine/internal/engine"
)

// Service drives claim submissions from one cranker identity.
type Service struct {
	engine   *engine.Engine
	identity solana.PublicKey
	interval time.Duration
	workers  int
	logger   *zap.Logger
}

// Config wires a cranker service.
type Config struct {
	Engine   *engine.Engine
	Identity solana.PublicKey
	Interval time.Duration
	Workers  int
	Logger   *zap.Logger
}

// New creates a cranker service.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("cranker config: engine is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("cranker config: invalid interval")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		engine:   cfg.Engine,
		identity: cfg.Identity,
		interval: cfg.Interval,
		workers:  cfg.Workers,
		logger:   cfg.Logger.Named("cranker"),
	}, nil
}

// Run polls for matured locks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Cranker started",
		zap.String("identity", s.identity.String()),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cranker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.CrankOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Crank pass failed", zap.Error(err))
			}
		}
	}
}

// CrankOnce claims every currently matured lock through a bounded worker
// group. Losing a claim race is not an error for the pass as a whole.
func (s *Service) CrankOnce(ctx context.Context) error {
	matured := s.engine.MaturedLocks()
	if len(matured) == 0 {
		return nil
	}
	s.logger.Debug("Matured locks found", zap.Int("count", len(matured)))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, user := range matured {
		g.Go(func() error {
			return s.claim(gCtx, user)
		})
	}
	return g.Wait()
}

func (s *Service) claim(ctx context.Context, user solana.PublicKey) error {
	op := func() (uint64, error) {
		payout, err := s.engine.ClaimLockedTokens(ctx, s.identity, user)
		switch {
		case err == nil:
			return payout, nil
		case errors.Is(err, engine.ErrAlreadyClaimed),
			errors.Is(err, engine.ErrNotYetUnlocked),
			errors.Is(err, engine.ErrLockNotFound):
			// A competing cranker won, or the scan raced maturity.
			return 0, backoff.Permanent(err)
		default:
			return 0, err
		}
	}

	payout, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(15*time.Second),
	)
	if err != nil {
		if errors.Is(err, engine.ErrAlreadyClaimed) {
			s.logger.Debug("Lock already claimed", zap.String("user", user.String()))
			return nil
		}
		if errors.Is(err, engine.ErrNotYetUnlocked) || errors.Is(err, engine.ErrLockNotFound) {
			return nil
		}
		return fmt.Errorf("claim for %s: %w", user, err)
	}

	s.logger.Info("Lock claimed",
		zap.String("user", user.String()),
		zap.Uint64("payout", payout))
	return nil
}
