package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/xlm-tipbot/internal/storage"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, checks map[string]Pinger) (*httptest.Server, *storage.Storage) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "tipbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if checks == nil {
		checks = map[string]Pinger{"ledger": store}
	}
	s := NewServer(store, checks, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
}

func TestHealthReportsFailedCheck(t *testing.T) {
	srv, _ := newTestServer(t, map[string]Pinger{
		"queue": pingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "queue unavailable", body)
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}

func TestAccountView(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t, nil)

	acct, err := store.GetOrCreate(ctx, "telegram", "42")
	require.NoError(t, err)
	_, err = store.Credit(ctx, acct, decimal.RequireFromString("2.5"), "payment-1", "deposit")
	require.NoError(t, err)

	code, body := get(t, srv.URL+"/accounts/telegram/42")
	require.Equal(t, http.StatusOK, code)

	var view accountView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Equal(t, "2.5000000", view.Balance)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "payment-1", view.Entries[0].Reference)
	assert.Equal(t, "2.5000000", view.Entries[0].Delta)
}

func TestAccountViewNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, _ := get(t, srv.URL+"/accounts/telegram/404")
	assert.Equal(t, http.StatusNotFound, code)
}
