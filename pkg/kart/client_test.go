package kart

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "busList": [
    {"plate": "07 ABC 123", "displayRouteCode": "VS18", "stopDiff": 4, "timeDiff": 7, "lat": 36.88, "lng": 30.70}
  ],
  "stopInfo": {"busStopName": "Muratpasa"}
}`

// fastRetries keeps retry tests from sleeping.
func fastRetries(c *Client) {
	c.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("http://example.com/", "", time.Second, 0, nil)

	assert.Equal(t, "http://example.com", c.baseURL)
	assert.Equal(t, DefaultRegion, c.region)
	assert.Nil(t, c.cache, "zero TTL disables the cache")
	assert.NotNil(t, c.httpClient)
}

func TestFetchClosestBuses_MockServer(t *testing.T) {
	var gotPath, gotRegion, gotStop, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRegion = r.URL.Query().Get("region")
		gotStop = r.URL.Query().Get("busStopId")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)

	result, err := c.FetchClosestBuses(context.Background(), "10010")
	require.NoError(t, err)

	assert.Equal(t, "/bus/closest", gotPath)
	assert.Equal(t, "026", gotRegion)
	assert.Equal(t, "10010", gotStop)
	assert.Equal(t, "antalyabus/1.0.0", gotUA)

	assert.Equal(t, "Muratpasa", result.StopName)
	require.Len(t, result.Buses, 1)
	assert.Equal(t, "VS18", result.Buses[0].RouteCode)
	assert.Equal(t, 7, result.Buses[0].MinutesAway)
}

func TestFetchClosestBuses_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)
	fastRetries(c)

	result, err := c.FetchClosestBuses(context.Background(), "10010")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Muratpasa", result.StopName)
}

func TestFetchClosestBuses_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)
	fastRetries(c)

	_, err := c.FetchClosestBuses(context.Background(), "10010")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestFetchClosestBuses_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad stop"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)
	fastRetries(c)

	_, err := c.FetchClosestBuses(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad stop")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchClosestBuses_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)

	_, err := c.FetchClosestBuses(context.Background(), "10010")
	assert.Error(t, err)
}

func TestFetchClosestBuses_CachesPerStop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, time.Minute, nil)
	ctx := context.Background()

	first, err := c.FetchClosestBuses(ctx, "10010")
	require.NoError(t, err)
	second, err := c.FetchClosestBuses(ctx, "10010")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.FetchClosestBuses(ctx, "10020")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchClosestBuses_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c := NewClient(server.URL, "026", 5*time.Second, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchClosestBuses(ctx, "10010")
	assert.Error(t, err)
}

// TestFetchClosestBuses_Integration calls the live API. It is skipped unless
// KART_BASE_URL is set.
func TestFetchClosestBuses_Integration(t *testing.T) {
	baseURL := os.Getenv("KART_BASE_URL")
	if baseURL == "" {
		t.Skip("KART_BASE_URL not set, skipping integration test")
	}

	c := NewClient(baseURL, DefaultRegion, 10*time.Second, 0, nil)
	result, err := c.FetchClosestBuses(context.Background(), "10010")
	require.NoError(t, err)
	assert.False(t, result.FetchedAt.IsZero())
}
