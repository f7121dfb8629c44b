package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/pkg/api"
)

// DefaultTimeout ограничивает время одного HTTP запроса
const DefaultTimeout = 30 * time.Second

// maxResponseSize ограничивает размер читаемого ответа
const maxResponseSize = 1 << 20

// Client представляет HTTP клиент для взаимодействия с backend.
// Все ошибки возвращаются в виде *errs.OperationError или *errs.AuthenticationError.
type Client struct {
	transport Transport
	logger    *slog.Logger
	baseURL   string
	userAgent string
}

// Option настраивает Client
type Option func(*Client)

// WithTransport подменяет HTTP транспорт (в тестах - TransportMock)
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithLogger задает логгер клиента
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTimeout задает таймаут запроса для транспорта по умолчанию
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.transport.(*http.Client); ok {
			hc.Timeout = d
		}
	}
}

// WithUserAgent задает заголовок User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		logger:    slog.Default(),
		userAgent: "playerid-sdk",
		transport: newHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		// Настройка обработки редиректов
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Ограничиваем количество редиректов
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			// Копируем заголовки Authorization при редиректе
			if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
				req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
			}
			return nil
		},
	}
}

// BaseURL возвращает адрес backend
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register регистрирует устройство игрока и возвращает первую пару токенов
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, errs.OpRegister, http.MethodPost, "/api/v1/auth/register", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	if err := errs.ValidateRequiredParameter(refreshToken, "refreshToken", errs.OpRefreshToken); err != nil {
		return nil, err
	}

	var resp api.TokenResponse
	req := api.RefreshRequest{RefreshToken: refreshToken}
	if err := c.doRequest(ctx, errs.OpRefreshToken, http.MethodPost, "/api/v1/auth/refresh", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout отзывает refresh token на сервере
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	req := api.LogoutRequest{RefreshToken: refreshToken}
	return c.doRequest(ctx, errs.OpLogout, http.MethodPost, "/api/v1/auth/logout", accessToken, req, nil)
}

// GetPlayerInfo получает профиль текущего игрока
func (c *Client) GetPlayerInfo(ctx context.Context, accessToken string) (*api.PlayerInfoResponse, error) {
	var resp api.PlayerInfoResponse
	if err := c.doRequest(ctx, errs.OpGetPlayerInfo, http.MethodGet, "/api/v1/player/me", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LinkProvider привязывает аккаунт провайдера к игроку
func (c *Client) LinkProvider(ctx context.Context, accessToken, provider string, req api.LinkRequest) (*api.Link, error) {
	if err := errs.ValidateRequiredParameter(provider, "provider", errs.OpLinkProvider); err != nil {
		return nil, err
	}

	var resp api.LinkResponse
	path := "/api/v1/links/" + url.PathEscape(provider)
	if err := c.doRequest(ctx, errs.OpLinkProvider, http.MethodPost, path, accessToken, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Link, nil
}

// UnlinkProvider удаляет привязку провайдера
func (c *Client) UnlinkProvider(ctx context.Context, accessToken, provider string) (*api.Link, error) {
	if err := errs.ValidateRequiredParameter(provider, "provider", errs.OpUnlinkProvider); err != nil {
		return nil, err
	}

	var resp api.LinkResponse
	path := "/api/v1/links/" + url.PathEscape(provider)
	if err := c.doRequest(ctx, errs.OpUnlinkProvider, http.MethodDelete, path, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Link, nil
}

// ListLinks получает полный список привязок игрока
func (c *Client) ListLinks(ctx context.Context, accessToken string) ([]api.Link, error) {
	var resp api.ListLinksResponse
	if err := c.doRequest(ctx, errs.OpListLinks, http.MethodGet, "/api/v1/links", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Links, nil
}

// GetFriends получает список друзей
func (c *Client) GetFriends(ctx context.Context, accessToken string) ([]api.Friend, error) {
	var resp api.FriendsResponse
	if err := c.doRequest(ctx, errs.OpGetFriends, http.MethodGet, "/api/v1/friends", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// AddFriend добавляет игрока в друзья
func (c *Client) AddFriend(ctx context.Context, accessToken, friendID string) error {
	if err := errs.ValidateRequiredParameter(friendID, "friendID", errs.OpAddFriend); err != nil {
		return err
	}
	req := api.AddFriendRequest{FriendID: friendID}
	return c.doRequest(ctx, errs.OpAddFriend, http.MethodPost, "/api/v1/friends", accessToken, req, nil)
}

// RemoveFriend удаляет игрока из друзей
func (c *Client) RemoveFriend(ctx context.Context, accessToken, friendID string) error {
	if err := errs.ValidateRequiredParameter(friendID, "friendID", errs.OpRemoveFriend); err != nil {
		return err
	}
	path := "/api/v1/friends/" + url.PathEscape(friendID)
	return c.doRequest(ctx, errs.OpRemoveFriend, http.MethodDelete, path, accessToken, nil, nil)
}

// GetFriendsLeaderboard получает рейтинг среди друзей
func (c *Client) GetFriendsLeaderboard(ctx context.Context, accessToken string) ([]api.LeaderboardEntry, error) {
	var resp api.LeaderboardResponse
	path := "/api/v1/friends/leaderboard"
	if err := c.doRequest(ctx, errs.OpGetFriendsLeaderboard, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// doRequest выполняет HTTP запрос и переводит любой сбой в таксономию errs
func (c *Client) doRequest(ctx context.Context, op errs.Operation, method, path, accessToken string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return errs.FromError(fmt.Errorf("failed to marshal request body: %w", err), op)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errs.FromError(fmt.Errorf("failed to create request: %w", err), op)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := c.transport.Do(req)
	if err != nil {
		translated := errs.FromError(err, op)
		c.logger.DebugContext(ctx, "request failed",
			slog.String("operation", op.String()),
			slog.String("path", path),
			slog.Any("error", translated),
		)
		return translated
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errs.FromError(fmt.Errorf("failed to read response body: %w", err), op)
	}

	c.logger.DebugContext(ctx, "request completed",
		slog.String("operation", op.String()),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeFailure(resp.StatusCode, respBody, op)
	}

	// Декодируем успешный ответ
	if result != nil {
		if len(respBody) == 0 {
			return errs.FromMalformedBody(respBody, op, fmt.Errorf("empty response body"))
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return errs.FromMalformedBody(respBody, op, err)
		}
	}

	return nil
}

// decodeFailure выбирает таксономию по телу ответа: код 100-106 означает
// ошибку аутентификации, остальное переводится по HTTP статусу.
func decodeFailure(status int, body []byte, op errs.Operation) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != 0 {
		if code, ok := errs.ParseAuthCode(errResp.Code); ok {
			message := errResp.Message
			if message == "" {
				message = errResp.Error
			}
			return errs.NewAuthenticationError(code, message, notificationsFromWire(errResp.Notifications),
				errs.FromHTTPResponse(status, body, op))
		}
	}
	return errs.FromHTTPResponse(status, body, op)
}

func notificationsFromWire(in []api.Notification) []errs.Notification {
	out := make([]errs.Notification, 0, len(in))
	for _, n := range in {
		out = append(out, errs.Notification{
			ID:        n.ID,
			Message:   n.Message,
			CaseID:    n.CaseID,
			PlayerID:  n.PlayerID,
			ProjectID: n.ProjectID,
			CreatedAt: time.Unix(n.CreatedAt, 0),
		})
	}
	return out
}
