package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/auth"
	"github.com/iudanet/playerid/pkg/api"
)

var testApp = auth.App{ID: "com.example.game", Environment: "production", Secret: []byte("app-secret-0123456789")}

func newTestIssuer(now *time.Time) *auth.Issuer {
	return auth.NewIssuer([]auth.App{testApp}, time.Hour, 24*time.Hour,
		auth.WithClock(func() time.Time { return *now }))
}

func echoPlayer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PlayerID(r.Context())))
	})
}

func TestAuth_Success(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(&now)
	issued, err := issuer.Issue(&models.Player{ID: "player-1", AppID: testApp.ID, DeviceID: "device-0001"})
	require.NoError(t, err)

	handler := Auth(slog.New(slog.NewTextHandler(io.Discard, nil)), issuer)(echoPlayer())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/player/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "player-1", w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(&now)
	issued, err := issuer.Issue(&models.Player{ID: "player-1", AppID: testApp.ID, DeviceID: "device-0001"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		header      string
		advance     time.Duration
		wantMessage string
	}{
		{name: "missing header", header: "", wantMessage: "missing bearer token"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantMessage: "missing bearer token"},
		{name: "empty bearer", header: "Bearer ", wantMessage: "missing bearer token"},
		{name: "garbage token", header: "Bearer not.a.jwt", wantMessage: "invalid access token"},
		{name: "expired token", header: "Bearer " + issued.AccessToken, advance: 2 * time.Hour, wantMessage: "access token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := now
			now = now.Add(tt.advance)
			defer func() { now = saved }()

			handler := Auth(slog.New(slog.NewTextHandler(io.Discard, nil)), issuer)(echoPlayer())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/links", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Unauthorized", resp.Error)
			assert.Equal(t, tt.wantMessage, resp.Message)
			// middleware не выдает кодов аутентификации
			assert.Zero(t, resp.Code)
		})
	}
}

func TestPlayerID_EmptyWithoutClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", PlayerID(req.Context()))

	ctx := WithClaims(req.Context(), &auth.Claims{PlayerID: "p"})
	assert.Equal(t, "p", PlayerID(ctx))
}
