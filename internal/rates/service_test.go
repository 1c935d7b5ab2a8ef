package rates

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ratewatch/internal/domain"
	"ratewatch/pkg/errors"
	"ratewatch/pkg/logger"
)

// Mocks

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetSnapshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) SetSnapshot(ctx context.Context, raw []byte) error {
	args := m.Called(ctx, raw)
	return args.Error(0)
}

func (m *MockCache) SetRates(ctx context.Context, rateValues map[string]float64) error {
	args := m.Called(ctx, rateValues)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, rec *domain.SnapshotRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context, limit int) ([]*domain.SnapshotRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SnapshotRecord), args.Error(1)
}

// fakeCache is a stateful in-memory SnapshotCache for round-trip tests.
type fakeCache struct {
	snapshot   []byte
	rateValues map[string]float64
	failSet    bool
	setCalls   int
	ratesCalls int
}

func (c *fakeCache) GetSnapshot(ctx context.Context) ([]byte, error) {
	if c.snapshot == nil {
		return nil, errors.ErrCache
	}
	return c.snapshot, nil
}

func (c *fakeCache) SetSnapshot(ctx context.Context, raw []byte) error {
	c.setCalls++
	if c.failSet {
		return errors.ErrCache
	}
	c.snapshot = raw
	return nil
}

func (c *fakeCache) SetRates(ctx context.Context, rateValues map[string]float64) error {
	c.ratesCalls++
	if c.failSet {
		return errors.ErrCache
	}
	c.rateValues = rateValues
	return nil
}

func mustSnapshotJSON(t *testing.T, rateValues map[string]float64) []byte {
	t.Helper()
	raw, err := json.Marshal(domain.RateSnapshot{
		Result:          "success",
		BaseCode:        "USD",
		ConversionRates: rateValues,
	})
	require.NoError(t, err)
	return raw
}

func TestGetRatesCacheHit(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0, "EUR": 0.92})

	cache := new(MockCache)
	cache.On("GetSnapshot", mock.Anything).Return(raw, nil)

	provider := new(MockProvider)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.BaseCode)
	assert.Equal(t, 0.92, snap.ConversionRates["EUR"])

	provider.AssertNotCalled(t, "FetchLatest", mock.Anything)
}

func TestGetRatesMissFetchesAndCaches(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0, "JPY": 151.2})

	cache := new(MockCache)
	cache.On("GetSnapshot", mock.Anything).Return(nil, errors.ErrCache)
	cache.On("SetSnapshot", mock.Anything, raw).Return(nil)

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(raw, nil)

	repo := new(MockRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(cache, []RateProvider{provider}, repo, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 151.2, snap.ConversionRates["JPY"])

	cache.AssertCalled(t, "SetSnapshot", mock.Anything, raw)
	repo.AssertCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGetRatesTransportFailureNoCacheWrite(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetSnapshot", mock.Anything).Return(nil, errors.ErrCache)

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(nil, errors.ErrTransport)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, errors.ErrRatesUnavailable)

	cache.AssertNotCalled(t, "SetSnapshot", mock.Anything, mock.Anything)
}

func TestGetRatesCacheWriteFailureStillReturns(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0})

	cache := &fakeCache{failSet: true}

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(raw, nil)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.BaseCode)
	assert.Equal(t, 1, cache.setCalls)
}

func TestGetRatesNonPositiveRateRejected(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0, "BAD": -3.0})

	cache := &fakeCache{}

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(raw, nil)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, errors.ErrRatesUnavailable)
	assert.Zero(t, cache.setCalls)
}

func TestGetRatesCacheRoundTrip(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0, "EUR": 0.92, "GBP": 0.79})

	cache := &fakeCache{}

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(raw, nil)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())

	first, err := svc.GetRates(context.Background())
	require.NoError(t, err)

	second, err := svc.GetRates(context.Background())
	require.NoError(t, err)

	// One network call; the second read comes verbatim from the cache.
	provider.AssertNumberOfCalls(t, "FetchLatest", 1)
	assert.Equal(t, raw, cache.snapshot)
	assert.Equal(t, first.ConversionRates, second.ConversionRates)
}

func TestProviderFallbackChain(t *testing.T) {
	raw := mustSnapshotJSON(t, map[string]float64{"USD": 1.0})

	cache := &fakeCache{}

	failing := new(MockProvider)
	failing.On("FetchLatest", mock.Anything).Return(nil, errors.ErrTransport)

	fallback := new(MockProvider)
	fallback.On("FetchLatest", mock.Anything).Return(raw, nil)

	svc := NewService(cache, []RateProvider{failing, fallback}, nil, logger.NewNop())

	snap, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.BaseCode)
}

func TestAggregateRates(t *testing.T) {
	cache := &fakeCache{snapshot: mustSnapshotJSON(t, map[string]float64{
		"AAA": 1.0, "BBB": 2.0, "CCC": 3.0, "DDD": 4.0,
	})}

	svc := NewService(cache, nil, nil, logger.NewNop())

	stats, err := svc.AggregateRates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.5, stats.Average)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	// Even n: index floor(n/2) picks the upper-middle value, not 2.5.
	assert.Equal(t, 3.0, stats.Median)
	assert.Equal(t, 4, stats.Count)
}

func TestAggregateMedianOddCount(t *testing.T) {
	stats := Aggregate(map[string]float64{"AAA": 9.0, "BBB": 1.0, "CCC": 5.0})

	assert.Equal(t, 5.0, stats.Median)
	assert.Equal(t, 5.0, stats.Average)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 9.0, stats.Max)
}

func TestSearchRatesInclusiveBounds(t *testing.T) {
	cache := &fakeCache{snapshot: mustSnapshotJSON(t, map[string]float64{
		"AAA": 0.4, "BBB": 0.5, "CCC": 1.0, "DDD": 2.0, "EEE": 2.1,
	})}

	svc := NewService(cache, nil, nil, logger.NewNop())

	codes, err := svc.SearchRates(context.Background(), 0.5, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBB", "CCC", "DDD"}, codes)
}

func TestSearchRatesInvalidRange(t *testing.T) {
	cache := &fakeCache{snapshot: mustSnapshotJSON(t, map[string]float64{"USD": 1.0})}

	svc := NewService(cache, nil, nil, logger.NewNop())

	_, err := svc.SearchRates(context.Background(), 2.0, 0.5)
	assert.ErrorIs(t, err, errors.ErrInvalidRange)
}

func TestReportsSkipWhenRatesUnavailable(t *testing.T) {
	cache := &fakeCache{}

	provider := new(MockProvider)
	provider.On("FetchLatest", mock.Anything).Return(nil, errors.ErrTransport)

	svc := NewService(cache, []RateProvider{provider}, nil, logger.NewNop())
	ctx := context.Background()

	_, err := svc.AggregateRates(ctx)
	assert.ErrorIs(t, err, errors.ErrRatesUnavailable)

	_, err = svc.SearchRates(ctx, 0.5, 2.0)
	assert.ErrorIs(t, err, errors.ErrRatesUnavailable)

	var buf discardWriter
	err = svc.RenderChart(ctx, &buf)
	assert.ErrorIs(t, err, errors.ErrRatesUnavailable)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPublishRates(t *testing.T) {
	cache := &fakeCache{}
	svc := NewService(cache, nil, nil, logger.NewNop())

	snap := &domain.RateSnapshot{
		BaseCode:        "USD",
		ConversionRates: map[string]float64{"USD": 1.0, "EUR": 0.92},
	}

	err := svc.PublishRates(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, snap.ConversionRates, cache.rateValues)
}

func TestPublishRatesWithoutMappingIsNoOp(t *testing.T) {
	cache := &fakeCache{}
	svc := NewService(cache, nil, nil, logger.NewNop())

	err := svc.PublishRates(context.Background(), &domain.RateSnapshot{BaseCode: "USD"})
	require.NoError(t, err)
	assert.Zero(t, cache.ratesCalls)

	err = svc.PublishRates(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, cache.ratesCalls)
}

func TestConvert(t *testing.T) {
	cache := &fakeCache{snapshot: mustSnapshotJSON(t, map[string]float64{
		"USD": 1.0, "EUR": 2.0, "GBP": 4.0,
	})}

	svc := NewService(cache, nil, nil, logger.NewNop())

	result, err := svc.Convert(context.Background(), &ConvertRequest{
		Amount: 10,
		From:   "EUR",
		To:     "GBP",
	})
	require.NoError(t, err)

	assert.True(t, result.Rate.Equal(decimal.NewFromInt(2)), "rate %s", result.Rate)
	assert.True(t, result.ConvertedAmount.Equal(decimal.NewFromInt(20)), "amount %s", result.ConvertedAmount)
}

func TestConvertUnknownCurrency(t *testing.T) {
	cache := &fakeCache{snapshot: mustSnapshotJSON(t, map[string]float64{"USD": 1.0})}

	svc := NewService(cache, nil, nil, logger.NewNop())

	_, err := svc.Convert(context.Background(), &ConvertRequest{
		Amount: 10,
		From:   "USD",
		To:     "XXX",
	})
	assert.ErrorIs(t, err, errors.ErrUnknownCurrency)
}

func TestHistoryWithoutRepository(t *testing.T) {
	svc := NewService(&fakeCache{}, nil, nil, logger.NewNop())

	records, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
