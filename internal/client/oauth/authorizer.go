// Package oauth implements linking.Authorizer with an OAuth2 authorization
// code flow (PKCE) completed through a loopback redirect.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"github.com/iudanet/playerid/internal/client/linking"
	"github.com/iudanet/playerid/internal/models"
)

const callbackPath = "/callback"

// AppleEndpoint is Sign in with Apple.
var AppleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://appleid.apple.com/auth/authorize",
	TokenURL:  "https://appleid.apple.com/auth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultEndpoint returns the well-known endpoint of provider.
// Steam uses OpenID 2.0 and has no OAuth2 endpoint.
func DefaultEndpoint(provider models.Provider) (oauth2.Endpoint, bool) {
	switch provider {
	case models.ProviderGoogle:
		return google.Endpoint, true
	case models.ProviderApple:
		return AppleEndpoint, true
	case models.ProviderFacebook:
		return facebook.Endpoint, true
	default:
		return oauth2.Endpoint{}, false
	}
}

// DefaultScopes returns scopes that yield a stable provider user ID.
func DefaultScopes(provider models.Provider) []string {
	switch provider {
	case models.ProviderGoogle:
		return []string{"openid", "email", "profile"}
	case models.ProviderApple:
		return []string{"openid", "email"}
	case models.ProviderFacebook:
		return []string{"public_profile", "email"}
	default:
		return nil
	}
}

// ProviderConfig describes a client registered with a provider.
// Only public (PKCE) clients are used on the device: no client secret.
type ProviderConfig struct {
	Endpoint oauth2.Endpoint
	ClientID string
	Scopes   []string
}

// Opener shows authURL to the user (system browser, printed link, webview).
type Opener func(ctx context.Context, authURL string) error

// Authorizer runs the provider handshake through a loopback HTTP server.
type Authorizer struct {
	providers  map[models.Provider]ProviderConfig
	open       Opener
	logger     *slog.Logger
	listenAddr string
	timeout    time.Duration
}

// Option настраивает Authorizer
type Option func(*Authorizer)

// WithListenAddr задает адрес loopback сервера (по умолчанию 127.0.0.1:0)
func WithListenAddr(addr string) Option {
	return func(a *Authorizer) { a.listenAddr = addr }
}

// WithTimeout ограничивает ожидание пользователя в браузере
func WithTimeout(d time.Duration) Option {
	return func(a *Authorizer) { a.timeout = d }
}

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// NewAuthorizer создает authorizer для заданных провайдеров
func NewAuthorizer(providers map[models.Provider]ProviderConfig, open Opener, opts ...Option) *Authorizer {
	a := &Authorizer{
		providers:  providers,
		open:       open,
		logger:     slog.Default(),
		listenAddr: "127.0.0.1:0",
		timeout:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ linking.Authorizer = (*Authorizer)(nil)

type callbackResult struct {
	code string
	err  error
}

// Authorize opens the provider consent page and waits for the redirect.
func (a *Authorizer) Authorize(ctx context.Context, provider models.Provider) (*linking.Artifact, error) {
	pc, ok := a.providers[provider]
	if !ok || pc.ClientID == "" {
		return nil, fmt.Errorf("provider %s is not configured", provider)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// 1. Поднимаем loopback сервер на свободном порту
	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for redirect: %w", err)
	}
	redirectURI := fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	conf := &oauth2.Config{
		ClientID:    pc.ClientID,
		Endpoint:    pc.Endpoint,
		RedirectURL: redirectURI,
		Scopes:      pc.Scopes,
	}

	// 2. PKCE verifier и state
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		res := parseCallback(r, state)
		if res.err != nil {
			http.Error(w, "Authorization failed, you can close this window.", http.StatusBadRequest)
		} else {
			_, _ = w.Write([]byte("Authorization complete, you can close this window."))
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("redirect server stopped", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// 3. Показываем страницу согласия
	a.logger.InfoContext(ctx, "waiting for provider consent",
		slog.String("provider", provider.String()),
		slog.String("redirect_uri", redirectURI),
	)
	if err := a.open(ctx, authURL); err != nil {
		return nil, fmt.Errorf("failed to open authorization page: %w", err)
	}

	// 4. Ждем redirect
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		return &linking.Artifact{
			AuthCode:     res.code,
			CodeVerifier: verifier,
			RedirectURI:  redirectURI,
		}, nil
	}
}

func parseCallback(r *http.Request, state string) callbackResult {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return callbackResult{err: linking.ErrAuthorizationCancelled}
		}
		return callbackResult{err: fmt.Errorf("provider returned error %s: %s", e, q.Get("error_description"))}
	}
	if q.Get("state") != state {
		return callbackResult{err: fmt.Errorf("state mismatch in redirect")}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: fmt.Errorf("redirect has no authorization code")}
	}
	return callbackResult{code: code}
}
