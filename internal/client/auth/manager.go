package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iudanet/playerid/internal/client/api"
	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/client/events"
	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/crypto"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/token"
	"github.com/iudanet/playerid/internal/validation"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// Claims of the registration assertion
const (
	ClaimAppID       = "app_id"
	ClaimDeviceID    = "device_id"
	ClaimEnvironment = "env"
)

const refreshKey = "refresh"

// Config описывает приложение, от имени которого работает SDK
type Config struct {
	AppID       string
	Environment string
	// AppSecret signs the registration assertion and verifies access tokens.
	// Empty secret disables both: only the time window is checked.
	AppSecret    []byte
	Platform     string
	Version      string
	Build        string
	SafetyMargin time.Duration
}

// Option настраивает Manager
type Option func(*Manager)

// WithTokenStore включает сохранение токенов между запусками
func WithTokenStore(s *TokenStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock подменяет источник времени (тесты)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// session is the identity the current token pair belongs to
type session struct {
	appID      string
	deviceID   string
	userID     string
	storageKey []byte
}

// Manager owns the TokenPair of the device session.
// Safe for concurrent use. At most one refresh is in flight at a time.
type Manager struct {
	backend   Backend
	store     *TokenStore
	codec     *token.Codec
	listeners *events.Fanout[Listener]
	logger    *slog.Logger
	now       func() time.Time
	lastErr   error
	cfg       Config
	sess      session
	pair      models.TokenPair
	group     singleflight.Group
	mu        sync.RWMutex
	persistMu sync.Mutex
	state     State
	// generation растет при каждой смене сессии (Register/Restore/Logout),
	// результат refresh от старой сессии отбрасывается
	generation uint64
}

// NewManager создает менеджер жизненного цикла токенов
func NewManager(backend Backend, cfg Config, opts ...Option) *Manager {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = models.DefaultSafetyMargin
	}

	m := &Manager{
		backend: backend,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.codec = token.New(token.WithClock(m.now))
	m.listeners = events.NewFanout[Listener](m.logger)
	return m
}

// Subscribe registers a lifecycle listener and returns its unsubscribe function.
func (m *Manager) Subscribe(l Listener) func() {
	return m.listeners.Subscribe(l)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TokenPair returns a copy of the current pair.
func (m *Manager) TokenPair() (models.TokenPair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, !m.pair.IsZero()
}

// UserID returns the backend player ID of the session.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.userID
}

// LastError returns the error that moved the manager to Invalid.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Register issues the first token pair for the device.
func (m *Manager) Register(ctx context.Context, cred DeviceCredential) (models.TokenPair, error) {
	if err := m.validateCredential(cred); err != nil {
		return models.TokenPair{}, err
	}

	m.mu.Lock()
	if m.state == StateAuthenticating {
		m.mu.Unlock()
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidUserState,
			"registration already in progress", nil, nil)
	}
	m.generation++
	gen := m.generation
	m.state = StateAuthenticating
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "registering device",
		slog.String("app_id", m.cfg.AppID),
		slog.String("device_id", cred.DeviceID),
	)

	// 1. Деривируем ключи устройства
	keys, err := crypto.DeriveDeviceKeys(cred.Secret, cred.DeviceID, crypto.DeviceSaltBase64(m.cfg.AppID, cred.DeviceID))
	if err != nil {
		m.setState(gen, StateNoSession)
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidUser, "invalid device credential", nil, err)
	}

	// 2. Хешируем auth_key для отправки на сервер
	secretHash, err := crypto.HashAuthKey(keys.AuthKey)
	if err != nil {
		m.setState(gen, StateNoSession)
		return models.TokenPair{}, errs.FromError(fmt.Errorf("failed to hash auth key: %w", err), errs.OpRegister)
	}

	// 3. Подписываем assertion секретом приложения
	assertion, err := m.assertion(cred.DeviceID)
	if err != nil {
		m.setState(gen, StateNoSession)
		return models.TokenPair{}, errs.FromError(err, errs.OpRegister)
	}

	// 4. Отправляем запрос на регистрацию
	resp, err := m.backend.Register(ctx, pkgapi.RegisterRequest{
		AppID:      m.cfg.AppID,
		DeviceID:   cred.DeviceID,
		SecretHash: secretHash,
		Assertion:  assertion,
		Platform:   m.cfg.Platform,
		Version:    m.cfg.Version,
		Build:      m.cfg.Build,
	})
	if err != nil {
		return models.TokenPair{}, m.registerFailed(ctx, gen, err)
	}

	pair := api.TokenPairFromWire(resp, m.now())

	// 5. Фиксируем сессию, если за время запроса ее не сменили
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidUserState,
			"session changed during registration", nil, nil)
	}
	m.sess = session{
		appID:      m.cfg.AppID,
		deviceID:   cred.DeviceID,
		userID:     resp.UserID,
		storageKey: keys.StorageKey,
	}
	m.pair = pair
	m.lastErr = nil
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(ctx, gen)

	m.logger.InfoContext(ctx, "device registered", slog.String("user_id", resp.UserID))
	m.listeners.Notify("registered", func(l Listener) { l.OnRegistered(pair) })

	return pair, nil
}

func (m *Manager) registerFailed(ctx context.Context, gen uint64, err error) error {
	translated := errs.FromError(err, errs.OpRegister)

	var authErr *errs.AuthenticationError
	if errors.As(translated, &authErr) {
		m.mu.Lock()
		if gen == m.generation {
			m.state = StateInvalid
			m.lastErr = authErr
		}
		m.mu.Unlock()

		m.logger.WarnContext(ctx, "registration rejected", slog.Any("error", authErr))
		m.listeners.Notify("invalidated", func(l Listener) { l.OnInvalidated(authErr) })
		return authErr
	}

	m.setState(gen, StateNoSession)
	m.logger.WarnContext(ctx, "registration failed", slog.Any("error", translated))
	return translated
}

// Restore resumes the persisted session of the device without network I/O.
// Returns an error wrapping storage.ErrAuthNotFound when nothing usable is stored.
func (m *Manager) Restore(ctx context.Context, cred DeviceCredential) (models.TokenPair, error) {
	if m.store == nil {
		return models.TokenPair{}, fmt.Errorf("token store is not configured: %w", storage.ErrAuthNotFound)
	}
	if err := m.validateCredential(cred); err != nil {
		return models.TokenPair{}, err
	}

	stored, err := m.store.GetAuthEncryptData(ctx)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to load auth data: %w", err)
	}
	if stored.AppID != m.cfg.AppID || stored.DeviceID != cred.DeviceID {
		return models.TokenPair{}, fmt.Errorf("stored session belongs to another app or device: %w", storage.ErrAuthNotFound)
	}

	keys, err := crypto.DeriveDeviceKeys(cred.Secret, cred.DeviceID, crypto.DeviceSaltBase64(m.cfg.AppID, cred.DeviceID))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to derive keys: %w", err)
	}

	auth, err := m.store.GetAuthDecryptData(ctx, keys.StorageKey)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to decrypt auth data: %w", err)
	}

	pair := models.TokenPair{
		Access:    auth.AccessToken,
		Refresh:   auth.RefreshToken,
		IssuedAt:  time.Unix(auth.IssuedAt, 0),
		ExpiresIn: time.Duration(auth.ExpiresIn) * time.Second,
	}

	m.mu.Lock()
	if m.state == StateAuthenticating {
		m.mu.Unlock()
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidUserState,
			"registration in progress", nil, nil)
	}
	m.generation++
	m.sess = session{
		appID:      auth.AppID,
		deviceID:   auth.DeviceID,
		userID:     auth.UserID,
		storageKey: keys.StorageKey,
	}
	m.pair = pair
	m.lastErr = nil
	// просроченный токен будет обновлен при первом EnsureValidAccessToken
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session restored",
		slog.String("user_id", auth.UserID),
		slog.Time("expires_at", pair.ExpiresAt()),
	)
	return pair, nil
}

// EnsureValidAccessToken returns a usable access token, refreshing it when
// it is expired or within the safety margin. A usable token is returned
// without any I/O. Concurrent callers share one in-flight refresh; a
// caller's ctx only bounds its own wait.
func (m *Manager) EnsureValidAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	state, pair, lastErr := m.state, m.pair, m.lastErr
	m.mu.RUnlock()

	switch state {
	case StateNoSession, StateAuthenticating:
		return "", errs.NewAuthenticationError(errs.ClientInvalidUserState, "no active session", nil, nil)
	case StateInvalid:
		if lastErr != nil {
			return "", lastErr
		}
		return "", errs.NewAuthenticationError(errs.ClientInvalidTokenState, "session is invalid, register again", nil, nil)
	case StateAuthenticated:
		if m.usable(pair) {
			return pair.Access, nil
		}
	}

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", errs.FromError(ctx.Err(), errs.OpRefreshToken)
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(models.TokenPair).Access, nil
	}
}

func (m *Manager) refresh(ctx context.Context) (models.TokenPair, error) {
	m.mu.Lock()
	switch m.state {
	case StateNoSession, StateAuthenticating:
		m.mu.Unlock()
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidUserState, "no active session", nil, nil)
	case StateInvalid:
		err := m.lastErr
		m.mu.Unlock()
		if err == nil {
			err = errs.NewAuthenticationError(errs.ClientInvalidTokenState, "session is invalid, register again", nil, nil)
		}
		return models.TokenPair{}, err
	case StateAuthenticated:
		// пара могла обновиться, пока вызывающий ждал своей очереди
		if m.usable(m.pair) {
			pair := m.pair
			m.mu.Unlock()
			return pair, nil
		}
	}
	gen := m.generation
	refreshToken := m.pair.Refresh
	m.state = StateRefreshing
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "refreshing access token")

	resp, err := m.backend.Refresh(ctx, refreshToken)
	if err != nil {
		return models.TokenPair{}, m.refreshFailed(ctx, gen, err)
	}

	pair := api.TokenPairFromWire(resp, m.now())

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return models.TokenPair{}, errs.NewAuthenticationError(errs.ClientInvalidTokenState,
			"session changed during refresh", nil, nil)
	}
	m.pair = pair
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(ctx, gen)

	m.logger.InfoContext(ctx, "access token refreshed", slog.Time("expires_at", pair.ExpiresAt()))
	m.listeners.Notify("refreshed", func(l Listener) { l.OnRefreshed(pair) })

	return pair, nil
}

// refreshFailed: отказ в refresh token (ошибка аутентификации или 401) делает
// сессию Invalid, остальные сбои переводят в Expired с возможностью повтора.
func (m *Manager) refreshFailed(ctx context.Context, gen uint64, err error) error {
	translated := errs.FromError(err, errs.OpRefreshToken)

	var authErr *errs.AuthenticationError
	rejected := errors.As(translated, &authErr)
	if !rejected {
		if code, ok := errs.CodeOf(translated); ok && code == errs.CodeInvalidToken {
			rejected = true
		}
	}

	if !rejected {
		m.setState(gen, StateExpired)
		m.logger.WarnContext(ctx, "token refresh failed, will retry", slog.Any("error", translated))
		return translated
	}

	var invalid *errs.AuthenticationError
	switch {
	case authErr != nil && authErr.Fatal():
		invalid = authErr
	case authErr != nil:
		invalid = errs.NewAuthenticationError(errs.ClientInvalidTokenExpired, "refresh token rejected",
			authErr.Notifications, translated)
	default:
		invalid = errs.NewAuthenticationError(errs.ClientInvalidTokenExpired, "refresh token rejected", nil, translated)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return invalid
	}
	m.state = StateInvalid
	m.lastErr = invalid
	m.pair = models.TokenPair{}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteAuth(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to drop rejected tokens", slog.Any("error", err))
		}
	}

	m.logger.WarnContext(ctx, "session invalidated", slog.Any("error", invalid))
	m.listeners.Notify("invalidated", func(l Listener) { l.OnInvalidated(invalid) })
	return invalid
}

// Logout revokes the refresh token on the backend (best effort) and drops
// the local session. Only a local storage failure is returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	pair := m.pair
	m.generation++
	m.state = StateNoSession
	m.pair = models.TokenPair{}
	m.sess = session{}
	m.lastErr = nil
	m.mu.Unlock()

	// 1. Пытаемся уведомить сервер о logout (best effort)
	if !pair.IsZero() {
		if err := m.backend.Logout(ctx, pair.Access, pair.Refresh); err != nil {
			m.logger.WarnContext(ctx, "failed to logout on server", slog.Any("error", err))
		}
	}

	// 2. Всегда удаляем локальные данные, даже если сервер недоступен
	if m.store != nil {
		m.persistMu.Lock()
		defer m.persistMu.Unlock()
		if err := m.store.DeleteAuth(ctx); err != nil {
			return fmt.Errorf("failed to delete local auth data: %w", err)
		}
	}

	m.logger.InfoContext(ctx, "logged out")
	return nil
}

// usable: окно времени с запасом и, если известен секрет, проверка подписи кодеком
func (m *Manager) usable(pair models.TokenPair) bool {
	if !pair.Usable(m.now(), m.cfg.SafetyMargin) {
		return false
	}
	if len(m.cfg.AppSecret) == 0 {
		return true
	}

	minutes := int(m.cfg.SafetyMargin / time.Minute)
	switch result := m.codec.Validate(pair.Access, m.cfg.AppSecret, minutes); result {
	case token.Valid:
		return true
	case token.NotYetValid:
		// часы устройства отстают от сервера; сервер остается судьей
		m.logger.Debug("access token issued in the future, local clock skew")
		return true
	default:
		m.logger.Debug("access token rejected locally", slog.String("result", result.String()))
		return false
	}
}

func (m *Manager) assertion(deviceID string) (string, error) {
	if len(m.cfg.AppSecret) == 0 {
		return "", nil
	}
	signed, err := m.codec.Encode(map[string]any{
		ClaimAppID:       m.cfg.AppID,
		ClaimDeviceID:    deviceID,
		ClaimEnvironment: m.cfg.Environment,
	}, m.cfg.AppSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign registration assertion: %w", err)
	}
	return signed, nil
}

func (m *Manager) validateCredential(cred DeviceCredential) error {
	if err := errs.ValidateRequiredParameter(m.cfg.AppID, "appID", errs.OpRegister); err != nil {
		return err
	}
	if err := errs.ValidateRequiredParameter(cred.DeviceID, "deviceID", errs.OpRegister); err != nil {
		return err
	}
	if err := errs.ValidateRequiredParameter(cred.Secret, "secret", errs.OpRegister); err != nil {
		return err
	}
	if err := validation.ValidateAppID(m.cfg.AppID); err != nil {
		return errs.NewAuthenticationError(errs.ClientInvalidUser, err.Error(), nil, err)
	}
	if err := validation.ValidateDeviceID(cred.DeviceID); err != nil {
		return errs.NewAuthenticationError(errs.ClientInvalidUser, err.Error(), nil, err)
	}
	if err := validation.ValidateDeviceSecret(cred.Secret); err != nil {
		return errs.NewAuthenticationError(errs.ClientInvalidUser, err.Error(), nil, err)
	}
	return nil
}

func (m *Manager) setState(gen uint64, s State) {
	m.mu.Lock()
	if gen == m.generation {
		m.state = s
	}
	m.mu.Unlock()
}

// persist сохраняет текущую пару; сбой хранилища не ломает сессию
func (m *Manager) persist(ctx context.Context, gen uint64) {
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.RLock()
	if gen != m.generation {
		m.mu.RUnlock()
		return
	}
	sess, pair := m.sess, m.pair
	m.mu.RUnlock()

	err := m.store.SaveAuth(ctx, &storage.AuthData{
		UserID:       sess.userID,
		AppID:        sess.appID,
		DeviceID:     sess.deviceID,
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		IssuedAt:     pair.IssuedAt.Unix(),
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
		UpdatedAt:    m.now().Unix(),
	}, sess.storageKey)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to persist tokens", slog.Any("error", err))
	}
}
