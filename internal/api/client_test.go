package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticResolver(url string) BaseURLResolver {
	return func() string { return url }
}

func newTestClient(url string) *Client {
	return NewClient(staticResolver(url), "demo-key", nil)
}

func TestRequestSendsAPIKeyAndContentType(t *testing.T) {
	var gotKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewEncoder(w).Encode([]models.WatchlistItem{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchWatchlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "demo-key", gotKey)
	assert.Equal(t, "application/json", gotContentType)
}

func TestBaseURLResolvedPerCall(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsA.Add(1)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srvB.Close()

	target := srvA.URL
	c := NewClient(func() string { return target }, "demo-key", nil)

	_, err := c.FetchOpenOrders(context.Background())
	require.NoError(t, err)

	// Environment failover must be observed on the very next request.
	target = srvB.URL
	_, err = c.FetchOpenOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), hitsA.Load())
	assert.Equal(t, int32(1), hitsB.Load())
}

func TestErrorDetailExtraction(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"detail field", `{"detail":"symbol not found"}`, "symbol not found"},
		{"message field", `{"message":"bad request"}`, "bad request"},
		{"error field", `{"error":"nope"}`, "nope"},
		{"raw text fallback", `plain text failure`, "plain text failure"},
		{"generic fallback", ``, "HTTP error! status: 500"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.FetchOpenOrders(context.Background())
			require.Error(t, err)

			apiErr, ok := models.AsAPIError(err)
			require.True(t, ok, "expected an APIError, got %T", err)
			assert.Equal(t, models.ErrHTTPStatus, apiErr.Kind)
			assert.Equal(t, 500, apiErr.Status)
			assert.Equal(t, tc.wantDetail, apiErr.Detail)
		})
	}
}

func TestRetryAfterHeaderParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "90")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"rate limited"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchTopCoins(context.Background(), nil)
	require.Error(t, err)

	apiErr, ok := models.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 429, apiErr.Status)
	assert.Equal(t, 90*time.Second, apiErr.RetryAfter)
	assert.True(t, models.IsRateLimited(err))
}

func TestTimeoutClassifiedAs408(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchOpenOrders(ctx)
	require.Error(t, err)

	apiErr, ok := models.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrTimeout, apiErr.Kind)
	assert.Equal(t, 408, apiErr.Status)
	assert.Greater(t, apiErr.RetryAfter, time.Duration(0))
}

func TestNetworkUnavailableClassifiedAsStatusZero(t *testing.T) {
	// A server that is already closed yields a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchOpenOrders(context.Background())
	require.Error(t, err)

	apiErr, ok := models.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrNetworkUnavailable, apiErr.Kind)
	assert.Equal(t, 0, apiErr.Status)
}

func TestSignalsFailuresTripBreakerAndShortCircuit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream down"}`))
	}))
	defer srv.Close()

	cb := breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown)
	c := NewClient(staticResolver(srv.URL), "demo-key", cb)

	for i := 0; i < breaker.DefaultThreshold; i++ {
		_, err := c.FetchSignals(context.Background(), "BTCUSDT")
		require.Error(t, err)
	}
	require.Equal(t, int32(breaker.DefaultThreshold), hits.Load())

	// The next call must short-circuit: no network attempt, resolved to nil.
	decision, err := c.FetchSignals(context.Background(), "BTCUSDT")
	assert.NoError(t, err, "circuit-open is deliberately treated as a non-error for signals")
	assert.Nil(t, decision)
	assert.Equal(t, int32(breaker.DefaultThreshold), hits.Load(), "no network call while open")
	assert.Equal(t, breaker.Open, cb.State())

	// A manual reset re-enables network attempts.
	cb.Reset()
	_, _ = c.FetchSignals(context.Background(), "BTCUSDT")
	assert.Equal(t, int32(breaker.DefaultThreshold+1), hits.Load())
}

func TestBreakerAutoRecoversAfterCooldown(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cb := breaker.New(breaker.DefaultThreshold, 60*time.Millisecond)
	c := NewClient(staticResolver(srv.URL), "demo-key", cb)

	for i := 0; i < breaker.DefaultThreshold; i++ {
		_, _ = c.FetchSignals(context.Background(), "ETHUSDT")
	}
	before := hits.Load()

	_, _ = c.FetchSignals(context.Background(), "ETHUSDT")
	assert.Equal(t, before, hits.Load(), "call during cooldown must not hit the network")

	time.Sleep(80 * time.Millisecond)
	_, _ = c.FetchSignals(context.Background(), "ETHUSDT")
	assert.Equal(t, before+1, hits.Load(), "call after cooldown must attempt the network again")
}

func TestNonSignalsErrorsDoNotFeedBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown)
	c := NewClient(staticResolver(srv.URL), "demo-key", cb)

	for i := 0; i < breaker.DefaultThreshold+2; i++ {
		_, err := c.FetchOpenOrders(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, breaker.Closed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestMutationErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"duplicate symbol"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.SaveWatchlistItem(context.Background(), &models.WatchlistItem{ID: 7, Symbol: "BTCUSDT"})
	require.Error(t, err, "mutation accessors must never swallow failures")

	apiErr, ok := models.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, "duplicate symbol", apiErr.Detail)
}

func TestQuickOrderGeneratesClientOrderID(t *testing.T) {
	var gotBody models.QuickOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(models.Order{OrderID: "1", ClientOrderID: gotBody.ClientOrderID})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	placed, err := c.PlaceQuickOrder(context.Background(), &models.QuickOrderRequest{
		Symbol: "BTCUSDT",
		Side:   models.Buy,
		Amount: 50,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gotBody.ClientOrderID)
	assert.Contains(t, gotBody.ClientOrderID, "dash-")
	assert.Equal(t, gotBody.ClientOrderID, placed.ClientOrderID)

	// IDs must be unique across rapid consecutive orders.
	first := gotBody.ClientOrderID
	_, err = c.PlaceQuickOrder(context.Background(), &models.QuickOrderRequest{
		Symbol: "BTCUSDT",
		Side:   models.Buy,
		Amount: 50,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, gotBody.ClientOrderID)
}

func TestExclusiveOperationCancelsPreviousCall(t *testing.T) {
	release := make(chan struct{})
	var first atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if first.CompareAndSwap(false, true) {
			<-release // hold the first request until the test is done
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchTopCoins(context.Background(), nil)
		errCh <- err
	}()

	// Give the first request time to reach the server before superseding it.
	require.Eventually(t, func() bool { return first.Load() }, time.Second, 5*time.Millisecond)

	_, err := c.FetchTopCoins(context.Background(), nil)
	require.NoError(t, err, "the superseding call must succeed")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled, "the superseded call must be aborted")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the superseded call to return")
	}
}
