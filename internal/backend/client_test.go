package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamForwardsPayloadAndStreamsBody(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: one\n\n")
		flusher.Flush()
		io.WriteString(w, "data: two\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	body, err := c.Stream(context.Background(), []byte(`{"query":"hi"}`))
	require.NoError(t, err)
	defer body.Close()

	all, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"query":"hi"}`), gotBody)
	require.Equal(t, "data: one\n\ndata: two\n\n", string(all))
}

func TestStreamNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Stream(context.Background(), []byte(`{}`))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestStreamUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections from here on

	c := NewClient(srv.URL, time.Second)
	_, err := c.Stream(context.Background(), []byte(`{}`))
	require.Error(t, err)

	var statusErr *StatusError
	require.False(t, errors.As(err, &statusErr), "connection refusal is not a status error")
}

func TestStreamCancellationAbortsRequest(t *testing.T) {
	requestGone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(requestGone)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, time.Second)
	body, err := c.Stream(ctx, []byte(`{}`))
	require.NoError(t, err)

	cancel()
	body.Close()

	select {
	case <-requestGone:
	case <-time.After(3 * time.Second):
		t.Fatal("backend request was not cancelled")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HEAD on an SSE endpoint is fine to reject, reachability is enough
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.HealthCheck())

	srv.Close()
	require.Error(t, c.HealthCheck())
}

func TestWaitReadyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.WaitReady(context.Background(), time.Second)
	require.Error(t, err)
}

func TestWaitReadyImmediate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.WaitReady(context.Background(), 5*time.Second))
}
