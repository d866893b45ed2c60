package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

const cacheKey = "ilpay:rates:prices"

// Service fetches asset prices from an external HTTP oracle and caches them in
// Redis. Prices are informational estimates used for quote negotiation only,
// so serving a slightly stale snapshot is fine; failing closed is not, since a
// missing price map blocks every quoting payment.
type Service struct {
	oracleURL string
	ttl       time.Duration
	client    *http.Client
	cache     *redis.Client
	logger    *slog.Logger
}

// NewService creates the rates adapter. cache may be nil, in which case every
// call hits the oracle.
func NewService(oracleURL string, ttl time.Duration, cache *redis.Client, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oracleURL: oracleURL,
		ttl:       ttl,
		client:    &http.Client{Timeout: 5 * time.Second},
		cache:     cache,
		logger:    logger,
	}
}

var _ portssvc.RatesService = (*Service)(nil)

// Prices returns the current asset-code to price map, preferring the cached
// snapshot while it is fresh.
func (s *Service) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	if prices, ok := s.cachedPrices(ctx); ok {
		return prices, nil
	}

	prices, err := s.fetchPrices(ctx)
	if err != nil {
		return nil, err
	}
	s.storePrices(ctx, prices)
	return prices, nil
}

func (s *Service) cachedPrices(ctx context.Context) (map[string]decimal.Decimal, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WarnContext(ctx, "Failed to read cached prices", "error", err)
		}
		return nil, false
	}
	var prices map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &prices); err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed cached prices", "error", err)
		return nil, false
	}
	return prices, true
}

func (s *Service) storePrices(ctx context.Context, prices map[string]decimal.Decimal) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(prices)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache prices", "error", err)
	}
}

func (s *Service) fetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.oracleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build oracle request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices from oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price oracle returned status %d", resp.StatusCode)
	}

	var payload struct {
		Prices map[string]decimal.Decimal `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(payload.Prices) == 0 {
		return nil, fmt.Errorf("price oracle returned no prices")
	}
	return payload.Prices, nil
}
