// Package notify подписывается на серверные события через websocket
// и применяет их к локальному состоянию SDK.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/pkg/api"
)

const eventsPath = "/api/v1/events"

// TokenSource выдает действующий access token перед каждым подключением.
type TokenSource interface {
	EnsureValidAccessToken(ctx context.Context) (string, error)
}

// Revoker применяет отзыв доступа провайдером.
type Revoker interface {
	OnAccessRevoked(ctx context.Context, provider models.Provider) error
}

// Listener держит websocket соединение с backend и переподключается при обрыве.
type Listener struct {
	tokens    TokenSource
	revoker   Revoker
	logger    *slog.Logger
	onEvent   func(api.Event)
	dialer    *websocket.Dialer
	eventsURL string
	minDelay  time.Duration
	maxDelay  time.Duration
}

// Option настраивает Listener
type Option func(*Listener)

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// WithEventHook вызывается для каждого полученного события (включая неизвестные)
func WithEventHook(fn func(api.Event)) Option {
	return func(ln *Listener) { ln.onEvent = fn }
}

// WithReconnectDelay задает границы экспоненциальной задержки переподключения
func WithReconnectDelay(minDelay, maxDelay time.Duration) Option {
	return func(ln *Listener) {
		ln.minDelay = minDelay
		ln.maxDelay = maxDelay
	}
}

// NewListener создает listener для backend по адресу baseURL (http/https).
func NewListener(baseURL string, tokens TokenSource, revoker Revoker, opts ...Option) (*Listener, error) {
	eventsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	ln := &Listener{
		tokens:    tokens,
		revoker:   revoker,
		logger:    slog.Default(),
		eventsURL: eventsURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		minDelay: time.Second,
		maxDelay: time.Minute,
	}
	for _, opt := range opts {
		opt(ln)
	}
	return ln, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += eventsPath
	return u.String(), nil
}

// Run слушает события до отмены ctx. Ошибки соединения не прерывают работу,
// listener переподключается с растущей задержкой.
// Если токен получить нельзя без новой регистрации (AuthenticationError),
// Run возвращает эту ошибку.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.minDelay
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if code, ok := errs.AuthCodeOf(err); ok && !connected {
			l.logger.ErrorContext(ctx, "events listener stopped: session is not authenticated",
				slog.String("code", code.String()),
				slog.Any("error", err),
			)
			return err
		}
		if connected {
			delay = l.minDelay
		}
		l.logger.WarnContext(ctx, "events connection lost",
			slog.Any("error", err),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, l.maxDelay)
	}
}

// session выполняет одно подключение. connected сообщает, удалось ли установить соединение.
func (l *Listener) session(ctx context.Context) (connected bool, err error) {
	token, err := l.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get access token: %w", err)
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := l.dialer.DialContext(ctx, l.eventsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("failed to dial events: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	l.logger.InfoContext(ctx, "events connection established", slog.String("url", l.eventsURL))

	// Закрываем соединение при отмене ctx, чтобы разблокировать ReadJSON
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var event api.Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("server closed events connection")
			}
			return true, fmt.Errorf("failed to read event: %w", err)
		}
		l.dispatch(ctx, event)
	}
}

func (l *Listener) dispatch(ctx context.Context, event api.Event) {
	if l.onEvent != nil {
		l.onEvent(event)
	}

	switch event.Type {
	case api.EventAccessRevoked:
		provider, err := models.ParseProvider(event.Provider)
		if err != nil {
			l.logger.WarnContext(ctx, "revocation for unknown provider", slog.String("provider", event.Provider))
			return
		}
		if err := l.revoker.OnAccessRevoked(ctx, provider); err != nil {
			l.logger.ErrorContext(ctx, "failed to apply revocation",
				slog.String("provider", provider.String()),
				slog.Any("error", err),
			)
		}
	case api.EventLinksChanged:
		l.logger.DebugContext(ctx, "links changed on server", slog.String("provider", event.Provider))
	default:
		l.logger.DebugContext(ctx, "ignoring unknown event", slog.String("type", event.Type))
	}
}
