package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNarrator struct {
	mock.Mock
}

func (m *mockNarrator) Narrate(ctx context.Context, trace domain.NumericTrace) (string, error) {
	args := m.Called(ctx, trace)
	return args.String(0), args.Error(1)
}

func fastConfig() config.ReasoningConfig {
	return config.ReasoningConfig{
		Timeout:     200 * time.Millisecond,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func sampleTrace() domain.NumericTrace {
	return domain.NumericTrace{
		ItemID:               "SKU-1",
		WeightedADS:          2,
		ProtectionWindowDays: 3,
		CurrentStock:         1,
		TargetStock:          6,
		DaysOfCover:          0.5,
		RecommendedOrderQty:  5,
		InsightCategory:      domain.InsightBuyMore,
		RiskState:            domain.RiskCritical,
		StockClass:           domain.StockActive,
		BlockedCapital:       decimal.Zero,
		ValueAtRisk:          decimal.Zero,
	}
}

func TestClientNarrate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req narrateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SKU-1", req.Trace.ItemID)
		_ = json.NewEncoder(w).Encode(narrateResponse{Rationale: "Order 5 units."})
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), fastConfig())
	prose, err := c.Narrate(context.Background(), sampleTrace())
	require.NoError(t, err)
	assert.Equal(t, "Order 5 units.", prose)
}

func TestClientNarrate_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(narrateResponse{Rationale: "ok"})
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), fastConfig())
	prose, err := c.Narrate(context.Background(), sampleTrace())
	require.NoError(t, err)
	assert.Equal(t, "ok", prose)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientNarrate_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad trace", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), fastConfig())
	_, err := c.Narrate(context.Background(), sampleTrace())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientNarrate_PerAttemptTimeout(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := NewClient(server.URL, server.Client(), cfg)

	_, err := c.Narrate(context.Background(), sampleTrace())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewClient("http://unused", http.DefaultClient, config.ReasoningConfig{
		Backoff:    100 * time.Millisecond,
		MaxBackoff: 250 * time.Millisecond,
	})
	b := c.newBackOff(context.Background())
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "three attempts allow two waits")

	c.maxAttempts = 5
	b = c.newBackOff(context.Background())
	b.NextBackOff()
	b.NextBackOff()
	assert.Equal(t, 250*time.Millisecond, b.NextBackOff())
}

func TestBackoffStopsWithContext(t *testing.T) {
	c := NewClient("http://unused", http.DefaultClient, fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, backoff.Stop, c.newBackOff(ctx).NextBackOff())
}

func TestRationale_UsesNarration(t *testing.T) {
	trace := sampleTrace()
	n := &mockNarrator{}
	n.On("Narrate", mock.Anything, trace).Return("Order 5 units to reach 6 on hand.", nil)

	prose, source := Rationale(context.Background(), n, trace)
	assert.Equal(t, domain.RationaleReasoning, source)
	assert.Equal(t, "Order 5 units to reach 6 on hand.", prose)
	n.AssertExpectations(t)
}

func TestRationale_FallsBackOnError(t *testing.T) {
	trace := sampleTrace()
	n := &mockNarrator{}
	n.On("Narrate", mock.Anything, trace).Return("", errors.New("timeout"))

	prose, source := Rationale(context.Background(), n, trace)
	assert.Equal(t, domain.RationaleTemplate, source)
	assert.Contains(t, prose, "Order 5 units")
}

func TestRationale_RejectsInventedNumbers(t *testing.T) {
	trace := sampleTrace()
	n := &mockNarrator{}
	n.On("Narrate", mock.Anything, trace).Return("Order 42 units today.", nil)

	prose, source := Rationale(context.Background(), n, trace)
	assert.Equal(t, domain.RationaleTemplate, source)
	assert.NotContains(t, prose, "42")
}

func TestRationale_AppendsCaveat(t *testing.T) {
	trace := sampleTrace()
	trace.HistoryDays = 4
	trace.InsightCategory = domain.InsightMonitor
	trace.Caveat = "Only 4 days of sales history; BUY_MORE downgraded to MONITOR until more data is available."

	n := &mockNarrator{}
	n.On("Narrate", mock.Anything, trace).Return("Stock covers 0.5 days.", nil)

	prose, source := Rationale(context.Background(), n, trace)
	assert.Equal(t, domain.RationaleReasoning, source)
	assert.Contains(t, prose, trace.Caveat)
}

func TestDisabled(t *testing.T) {
	narrator, err := New(context.Background(), config.ReasoningConfig{Enabled: false})
	require.NoError(t, err)

	prose, source := Rationale(context.Background(), narrator, sampleTrace())
	assert.Equal(t, domain.RationaleTemplate, source)
	assert.NotEmpty(t, prose)
}
