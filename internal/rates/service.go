// Package rates implements the exchange-rate fetch, cache, and reporting
// pipeline.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ratewatch/internal/domain"
	"ratewatch/pkg/errors"
	"ratewatch/pkg/logger"
)

// Service provides cache-or-fetch snapshot retrieval and the reports built
// on top of it. Apart from the external stores every call is stateless.
type Service struct {
	cache     SnapshotCache
	providers []RateProvider
	repo      SnapshotRepository
	logger    logger.Logger
}

// NewService constructs a Service. repo may be nil, which disables snapshot
// history.
func NewService(cache SnapshotCache, providers []RateProvider, repo SnapshotRepository, log logger.Logger) *Service {
	return &Service{
		cache:     cache,
		providers: providers,
		repo:      repo,
		logger:    log,
	}
}

// GetRates returns the current snapshot, reading the cache first and falling
// back to the provider chain on a miss. Transport, parse, and cache failures
// are caught here, logged, and collapsed into ErrRatesUnavailable so callers
// only have to handle the absent case.
func (s *Service) GetRates(ctx context.Context) (*domain.RateSnapshot, error) {
	if raw, err := s.cache.GetSnapshot(ctx); err == nil {
		snap, perr := parseSnapshot(raw)
		if perr == nil {
			s.logger.Debug("snapshot served from cache", nil)
			return snap, nil
		}
		s.logger.Warn("cached snapshot is malformed, refetching", map[string]interface{}{
			"error": perr.Error(),
		})
	}

	snap, err := s.fetchAndStore(ctx)
	if err != nil {
		s.logger.Error("rates unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, errors.ErrRatesUnavailable
	}

	return snap, nil
}

func (s *Service) fetchAndStore(ctx context.Context) (*domain.RateSnapshot, error) {
	var lastErr error

	for _, provider := range s.providers {
		raw, err := provider.FetchLatest(ctx)
		if err != nil {
			s.logger.Warn("provider failed", map[string]interface{}{
				"provider": provider.Name(),
				"error":    err.Error(),
			})
			lastErr = err
			continue
		}

		snap, err := parseSnapshot(raw)
		if err != nil {
			s.logger.Warn("provider returned malformed document", map[string]interface{}{
				"provider": provider.Name(),
				"error":    err.Error(),
			})
			lastErr = err
			continue
		}

		// Best effort: a cache-write failure must not discard the result.
		if err := s.cache.SetSnapshot(ctx, raw); err != nil {
			s.logger.Warn("failed to cache snapshot", map[string]interface{}{
				"error": fmt.Errorf("%w: %v", errors.ErrCache, err).Error(),
			})
		}

		s.recordSnapshot(ctx, snap, raw, provider.Name())

		return snap, nil
	}

	if lastErr == nil {
		lastErr = errors.ErrTransport
	}
	return nil, lastErr
}

func (s *Service) recordSnapshot(ctx context.Context, snap *domain.RateSnapshot, raw []byte, source string) {
	if s.repo == nil {
		return
	}

	rec := &domain.SnapshotRecord{
		ID:        uuid.New(),
		BaseCode:  snap.BaseCode,
		Payload:   raw,
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Warn("failed to record snapshot history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func parseSnapshot(raw []byte) (*domain.RateSnapshot, error) {
	var snap domain.RateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrParse, err)
	}

	if len(snap.ConversionRates) == 0 {
		return nil, fmt.Errorf("%w: missing conversion_rates", errors.ErrParse)
	}

	for code, rate := range snap.ConversionRates {
		if rate <= 0 {
			return nil, fmt.Errorf("%w: non-positive rate for %s", errors.ErrParse, code)
		}
	}

	return &snap, nil
}

// PublishRates extracts the conversion_rates mapping from snap and overwrites
// the rates-only cache entry, independent of the full snapshot entry. A
// snapshot without rates is a logged no-op.
func (s *Service) PublishRates(ctx context.Context, snap *domain.RateSnapshot) error {
	if snap == nil || len(snap.ConversionRates) == 0 {
		s.logger.Warn("publish skipped, snapshot has no conversion rates", nil)
		return nil
	}

	if err := s.cache.SetRates(ctx, snap.ConversionRates); err != nil {
		s.logger.Error("failed to publish rates", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", errors.ErrCache, err)
	}

	return nil
}

// AggregateRates reports mean, min, max, and median of all rate values.
func (s *Service) AggregateRates(ctx context.Context) (*domain.RateStats, error) {
	snap, err := s.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	stats := Aggregate(snap.ConversionRates)
	return &stats, nil
}

// SearchRates lists the currency codes whose rate lies within [min, max],
// bounds inclusive.
func (s *Service) SearchRates(ctx context.Context, min, max float64) ([]string, error) {
	if min > max {
		return nil, errors.ErrInvalidRange
	}

	snap, err := s.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	return SearchRange(snap.ConversionRates, min, max), nil
}

// RenderChart writes a PNG bar chart of the current rates into w.
func (s *Service) RenderChart(ctx context.Context, w io.Writer) error {
	snap, err := s.GetRates(ctx)
	if err != nil {
		return err
	}

	return RenderChart(snap, w)
}

// ConvertRequest is an amount conversion between two snapshot currencies.
type ConvertRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	From   string  `json:"from" validate:"required,currency_code"`
	To     string  `json:"to" validate:"required,currency_code"`
}

// ConvertResponse is the conversion result.
type ConvertResponse struct {
	SourceAmount    decimal.Decimal `json:"source_amount"`
	SourceCurrency  string          `json:"source_currency"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	TargetCurrency  string          `json:"target_currency"`
	Rate            decimal.Decimal `json:"rate"`
}

// Convert computes the cross rate between two currencies through the
// snapshot's base and applies it to the requested amount.
func (s *Service) Convert(ctx context.Context, req *ConvertRequest) (*ConvertResponse, error) {
	snap, err := s.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	fromRate, ok := snap.ConversionRates[req.From]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownCurrency, req.From)
	}

	toRate, ok := snap.ConversionRates[req.To]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownCurrency, req.To)
	}

	rate := decimal.NewFromFloat(toRate).Div(decimal.NewFromFloat(fromRate))
	amount := decimal.NewFromFloat(req.Amount)

	return &ConvertResponse{
		SourceAmount:    amount,
		SourceCurrency:  req.From,
		ConvertedAmount: amount.Mul(rate),
		TargetCurrency:  req.To,
		Rate:            rate,
	}, nil
}

// History returns the most recent persisted snapshots, newest first. Without
// a repository it reports an empty history.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.SnapshotRecord, error) {
	if s.repo == nil {
		return []*domain.SnapshotRecord{}, nil
	}

	return s.repo.List(ctx, limit)
}

// SnapshotRepository defines persistence operations for snapshot history.
type SnapshotRepository interface {
	Create(ctx context.Context, rec *domain.SnapshotRecord) error
	List(ctx context.Context, limit int) ([]*domain.SnapshotRecord, error)
}
