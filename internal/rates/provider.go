package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ratewatch/internal/domain"
	"ratewatch/pkg/errors"
)

// RateProvider supplies the raw snapshot document from an external source.
type RateProvider interface {
	Name() string
	FetchLatest(ctx context.Context) ([]byte, error)
}

// ExchangeRateAPIProvider fetches the latest conversion rates from an
// exchangerate-api.com style endpoint returning a conversion_rates mapping.
type ExchangeRateAPIProvider struct {
	endpoint string
	client   *http.Client
}

func NewExchangeRateAPIProvider(endpoint string, timeout time.Duration) *ExchangeRateAPIProvider {
	return &ExchangeRateAPIProvider{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *ExchangeRateAPIProvider) Name() string {
	return "ExchangeRateAPI"
}

func (p *ExchangeRateAPIProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: provider returned status %d", errors.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}

	return body, nil
}

// StaticProvider serves a fixed snapshot. It backs local development and is
// the last entry in the provider chain so reports still work offline.
type StaticProvider struct {
	baseCode string
	rates    map[string]float64
}

func NewStaticProvider(baseCode string, rateValues map[string]float64) *StaticProvider {
	return &StaticProvider{
		baseCode: baseCode,
		rates:    rateValues,
	}
}

func (p *StaticProvider) Name() string {
	return "Static"
}

func (p *StaticProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	snap := domain.RateSnapshot{
		Result:          "success",
		BaseCode:        p.baseCode,
		TimeLastUpdate:  time.Now().Unix(),
		ConversionRates: p.rates,
	}

	return json.Marshal(snap)
}
