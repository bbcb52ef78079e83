package sameday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// carrierStub fakes the carrier: counts auth calls and serves a few
// operation endpoints.
type carrierStub struct {
	authCalls   atomic.Int32
	authStatus  int
	expireAt    string
	countyCalls atomic.Int32
}

func (s *carrierStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/authenticate", func(w http.ResponseWriter, r *http.Request) {
		s.authCalls.Add(1)
		if r.Header.Get("X-AUTH-USERNAME") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if s.authStatus != 0 && s.authStatus != 200 {
			w.WriteHeader(s.authStatus)
			_, _ = w.Write([]byte(`{"error":"too many attempts"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-1","expire_at":"` + s.expireAt + `"}`))
	})
	mux.HandleFunc("/api/geolocation/county", func(w http.ResponseWriter, r *http.Request) {
		s.countyCalls.Add(1)
		if r.Header.Get("X-AUTH-TOKEN") != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Cluj","code":"CJ"}]}`))
	})
	mux.HandleFunc("/api/awb", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	})
	return mux
}

func newTestClient(t *testing.T, stub *carrierStub, at time.Time) (*Client, *time.Duration) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		Username:     "kitchenoff",
		Password:     "secret",
		AuthCooldown: 5 * time.Minute,
	})
	var slept time.Duration
	c.now = func() time.Time { return at }
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}
	return c, &slept
}

func TestAuthenticateCachesToken(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	c, _ := newTestClient(t, stub, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))

	_, err := c.GetCounties(context.Background())
	require.NoError(t, err)
	_, err = c.GetCounties(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.authCalls.Load(), "token must be reused until expiry")
	assert.Equal(t, int32(2), stub.countyCalls.Load())
	assert.Equal(t, time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC), c.expiry)
}

func TestAuthCooldownBlocksRapidReauth(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	c, slept := newTestClient(t, stub, now)

	// an auth attempt happened 10 seconds ago
	c.lastAuthAttempt = now.Add(-10 * time.Second)

	_, err := c.GetCounties(context.Background())
	require.NoError(t, err)

	// must wait out the remaining ~290s of the 5-minute window first
	assert.Equal(t, 290*time.Second, *slept)
	assert.Equal(t, int32(1), stub.authCalls.Load())
}

func TestAuthCooldownRespectsContext(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, stub, now)
	c.lastAuthAttempt = now.Add(-10 * time.Second)
	c.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	_, err := c.GetCounties(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), stub.authCalls.Load(), "no network call before the cooldown elapses")
}

func TestFirstAuthHasNoCooldown(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	c, slept := newTestClient(t, stub, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))

	_, err := c.GetCounties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), *slept)
}

func TestAuthenticationError(t *testing.T) {
	stub := &carrierStub{authStatus: http.StatusTooManyRequests, expireAt: "2030-01-01 12:00"}
	c, _ := newTestClient(t, stub, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))

	_, err := c.GetCounties(context.Background())
	require.Error(t, err)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusTooManyRequests, authErr.StatusCode)
}

func TestCarrierAPIError(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	c, _ := newTestClient(t, stub, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))

	_, err := c.CreateAWB(context.Background(), AWBRequest{})
	require.Error(t, err)

	var apiErr *CarrierAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "/api/awb", apiErr.Endpoint)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.RawBody, "invalid recipient")
}

func TestExpiredTokenTriggersReauth(t *testing.T) {
	stub := &carrierStub{expireAt: "2030-01-01 12:00"}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, stub, now)

	_, err := c.GetCounties(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), stub.authCalls.Load())

	// jump past expiry; cooldown has long elapsed too
	c.now = func() time.Time { return time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC) }

	_, err = c.GetCounties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.authCalls.Load())
}
