package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/playerid/internal/server/auth"
	"github.com/iudanet/playerid/internal/server/events"
	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/provider"
	"github.com/iudanet/playerid/internal/server/storage/sqlite"
	"github.com/iudanet/playerid/internal/token"
	"github.com/iudanet/playerid/pkg/api"
)

const testRevocationKey = "relay-key"

var testApp = auth.App{
	ID:          "com.example.game",
	Environment: "production",
	Secret:      []byte("app-secret-0123456789"),
}

type testServer struct {
	srv    *httptest.Server
	store  *sqlite.Storage
	hub    *events.Hub
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	issuer := auth.NewIssuer([]auth.App{testApp}, time.Hour, 24*time.Hour)
	hub := events.NewHub(logger)
	t.Cleanup(hub.CloseAll)

	limiter := middleware.NewRateLimiter(1000, 1000, time.Minute, logger)
	t.Cleanup(limiter.Stop)

	router := &Router{
		Logger:        logger,
		Auth:          NewAuthHandler(logger, store, store, issuer),
		Player:        NewPlayerHandler(logger, store),
		Links:         NewLinksHandler(logger, store, provider.NewRegistry(provider.Dev{}), hub, testRevocationKey),
		Friends:       NewFriendsHandler(logger, store),
		Events:        NewEventsHandler(hub),
		Health:        NewHealthHandler(logger, store, "test"),
		Metrics:       middleware.NewMetrics("playerid"),
		RateLimiter:   limiter,
		Authenticator: issuer,
	}

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, hub: hub, client: srv.Client()}
}

// do отправляет запрос; bearer может быть пустым
func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func appAssertion(t *testing.T, appID, deviceID, env string) string {
	t.Helper()
	signed, err := token.Encode(map[string]any{
		auth.ClaimAppID:       appID,
		auth.ClaimDeviceID:    deviceID,
		auth.ClaimEnvironment: env,
	}, testApp.Secret)
	require.NoError(t, err)
	return signed
}

func registerRequest(t *testing.T, deviceID, secretHash string) api.RegisterRequest {
	return api.RegisterRequest{
		AppID:      testApp.ID,
		DeviceID:   deviceID,
		SecretHash: secretHash,
		Assertion:  appAssertion(t, testApp.ID, deviceID, testApp.Environment),
		Platform:   "linux",
		Version:    "1.0.0",
		Build:      "42",
	}
}

// registerPlayer регистрирует новое устройство и возвращает выданные токены
func (ts *testServer) registerPlayer(t *testing.T, deviceID string) api.TokenResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest(t, deviceID, "hash-"+deviceID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[api.TokenResponse](t, resp)
}
