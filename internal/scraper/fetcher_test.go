package scraper

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

func newTestFetcher(maxAttempts int) *Fetcher {
	f := NewFetcher(5*time.Second, "test-agent", maxAttempts)
	f.backoffBase = time.Millisecond
	return f
}

func TestFetchSuccess(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><body><h1>Produto</h1></body></html>`))
	}))
	defer ts.Close()

	doc, err := newTestFetcher(3).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "Produto", doc.Find("h1").Text())
	assert.Equal(t, "test-agent", gotUA)
}

func TestFetchBlockDetection(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`<html><body>Please complete the CAPTCHA to continue</body></html>`))
	}))
	defer ts.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), ts.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
	// Bloqueio não é retentável dentro da mesma chamada
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<html><body><span class="price">R$ 10,00</span></body></html>`))
	}))
	defer ts.Close()

	doc, err := newTestFetcher(3).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load())
	assert.NotNil(t, doc)
}

func TestFetchMaxAttemptsExceeded(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tentativas")
	assert.Equal(t, int32(2), requests.Load())

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), ts.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchTooManyRequestsIsRetryable(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer ts.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetchContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(3).Fetch(ctx, ts.URL)
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&HTTPError{StatusCode: 500}))
	assert.True(t, isRetryable(&HTTPError{StatusCode: 429}))
	assert.False(t, isRetryable(&HTTPError{StatusCode: 404}))
	assert.True(t, isRetryable(errors.New("read tcp: connection reset by peer")))
	assert.True(t, isRetryable(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryable(ErrBlocked))
	assert.False(t, isRetryable(nil))
}
