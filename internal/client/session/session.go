package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/playerid/internal/client/api"
	"github.com/iudanet/playerid/internal/client/auth"
	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/client/events"
	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/models"
)

// Session is the authenticated identity of one device.
// It is safe for concurrent use; Start/Resume/Logout are serialized.
type Session struct {
	tokens      Tokens
	backend     PlayerBackend
	meta        storage.MetadataStorage
	links       storage.LinkStorage
	logger      *slog.Logger
	observers   *events.Fanout[Observer]
	unsubscribe func()
	err         error
	info        *models.UserInfo
	pair        models.TokenPair
	opMu        sync.Mutex
	mu          sync.RWMutex
	state       State
}

// Option настраивает Session
type Option func(*Session)

// WithMetadataStorage включает кеш последнего UserInfo
func WithMetadataStorage(s storage.MetadataStorage) Option {
	return func(sess *Session) { sess.meta = s }
}

// WithLinkStorage позволяет очищать кеш привязок при logout
func WithLinkStorage(s storage.LinkStorage) Option {
	return func(sess *Session) { sess.links = s }
}

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(sess *Session) { sess.logger = l }
}

// New создает сессию и подписывает ее на события менеджера токенов.
func New(tokens Tokens, backend PlayerBackend, opts ...Option) *Session {
	s := &Session{
		tokens:  tokens,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observers = events.NewFanout[Observer](s.logger)
	s.unsubscribe = tokens.Subscribe(tokenListener{s: s})
	return s
}

// Close отписывает сессию от менеджера токенов.
func (s *Session) Close() {
	s.unsubscribe()
}

// Subscribe registers an observer and returns its unsubscribe function.
func (s *Session) Subscribe(o Observer) func() {
	return s.observers.Subscribe(o)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that moved the session to Failed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// UserInfo returns the last fetched player snapshot.
func (s *Session) UserInfo() (models.UserInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return models.UserInfo{}, false
	}
	return *s.info, true
}

// TokenPair returns the pair of the last registration or refresh.
func (s *Session) TokenPair() models.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// Start registers the device and brings the session to Ready.
// Allowed from Unauthenticated and Failed.
func (s *Session) Start(ctx context.Context, cred auth.DeviceCredential) (models.UserInfo, error) {
	return s.run(ctx, func(ctx context.Context) (models.TokenPair, error) {
		return s.tokens.Register(ctx, cred)
	})
}

// Resume restores the persisted token pair instead of registering again.
// A missing stored session is returned as an error wrapping
// storage.ErrAuthNotFound and the state stays Unauthenticated.
func (s *Session) Resume(ctx context.Context, cred auth.DeviceCredential) (models.UserInfo, error) {
	return s.run(ctx, func(ctx context.Context) (models.TokenPair, error) {
		return s.tokens.Restore(ctx, cred)
	})
}

func (s *Session) run(ctx context.Context, obtain func(context.Context) (models.TokenPair, error)) (models.UserInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateUnauthenticated, StateFailed:
	default:
		state := s.state
		s.mu.Unlock()
		return models.UserInfo{}, errs.NewAuthenticationError(errs.ClientInvalidUserState,
			fmt.Sprintf("session is %s, logout first", state), nil, nil)
	}
	s.state = StateRegistering
	s.err = nil
	s.info = nil
	s.mu.Unlock()

	// 1. Получаем токены
	pair, err := obtain(ctx)
	if err != nil {
		return models.UserInfo{}, s.fail(ctx, err, StateUnauthenticated)
	}

	s.mu.Lock()
	s.pair = pair
	s.state = StateRegistered
	s.mu.Unlock()

	// 2. Загружаем профиль игрока
	info, err := s.fetch(ctx)
	if err != nil {
		return models.UserInfo{}, s.fail(ctx, err, StateRegistered)
	}

	// 3. Готово
	s.setState(StateReady)
	s.logger.InfoContext(ctx, "player ready", slog.String("username", info.Username))
	s.observers.Notify("user_ready", func(o Observer) { o.OnUserReady(info) })

	return info, nil
}

// RefreshPlayerInfo fetches the profile again. Allowed from Registered and Ready.
func (s *Session) RefreshPlayerInfo(ctx context.Context) (models.UserInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	state := s.State()
	if state != StateRegistered && state != StateReady {
		return models.UserInfo{}, errs.NewAuthenticationError(errs.ClientInvalidUserState,
			fmt.Sprintf("session is %s", state), nil, nil)
	}

	info, err := s.fetch(ctx)
	if err != nil {
		return models.UserInfo{}, s.fail(ctx, err, state)
	}

	if state == StateRegistered {
		s.setState(StateReady)
		s.observers.Notify("user_ready", func(o Observer) { o.OnUserReady(info) })
	}
	return info, nil
}

// fetch загружает UserInfo; при сбое сети используется кеш того же игрока
func (s *Session) fetch(ctx context.Context) (models.UserInfo, error) {
	s.setState(StateFetchingPlayerInfo)

	info, err := s.fetchRemote(ctx)
	if err != nil {
		if cached, ok := s.cachedFallback(ctx, err); ok {
			info = cached
		} else {
			return models.UserInfo{}, err
		}
	} else if s.meta != nil {
		if err := s.meta.SavePlayerInfo(ctx, info); err != nil {
			s.logger.WarnContext(ctx, "failed to cache player info", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	s.info = &info
	s.mu.Unlock()

	s.observers.Notify("player_info_fetched", func(o Observer) { o.OnPlayerInfoFetched(info) })
	return info, nil
}

func (s *Session) fetchRemote(ctx context.Context) (models.UserInfo, error) {
	accessToken, err := s.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return models.UserInfo{}, err
	}
	resp, err := s.backend.GetPlayerInfo(ctx, accessToken)
	if err != nil {
		return models.UserInfo{}, err
	}
	return api.UserInfoFromWire(resp), nil
}

// cachedFallback возвращает сохраненный профиль, если ошибка транспортная
// и кеш принадлежит текущему игроку
func (s *Session) cachedFallback(ctx context.Context, cause error) (models.UserInfo, bool) {
	if s.meta == nil {
		return models.UserInfo{}, false
	}
	code, ok := errs.CodeOf(cause)
	if !ok || !code.Retriable() {
		return models.UserInfo{}, false
	}

	cached, err := s.meta.GetPlayerInfo(ctx)
	if err != nil {
		return models.UserInfo{}, false
	}
	if userID := s.tokens.UserID(); userID != "" && cached.UUID != userID {
		return models.UserInfo{}, false
	}

	s.logger.WarnContext(ctx, "using cached player info", slog.Any("error", cause))
	return *cached, true
}

// fail: ошибка аутентификации переводит сессию в Failed,
// остальные ошибки возвращают ее в состояние fallback
func (s *Session) fail(ctx context.Context, err error, fallback State) error {
	var authErr *errs.AuthenticationError
	if errors.As(err, &authErr) {
		s.mu.Lock()
		s.state = StateFailed
		s.err = authErr
		s.mu.Unlock()

		s.logger.ErrorContext(ctx, "session failed", slog.Any("error", authErr))
		return authErr
	}

	s.setState(fallback)
	s.logger.WarnContext(ctx, "session step failed", slog.String("state", fallback.String()), slog.Any("error", err))
	return err
}

// Logout завершает сессию и очищает локальные кеши.
func (s *Session) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var result error
	if err := s.tokens.Logout(ctx); err != nil {
		result = errors.Join(result, err)
	}
	if s.links != nil {
		if err := s.links.ReplaceLinks(ctx, nil); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to clear link cache: %w", err))
		}
	}
	if s.meta != nil {
		if err := s.meta.DeletePlayerInfo(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to clear player info: %w", err))
		}
	}

	s.mu.Lock()
	s.state = StateUnauthenticated
	s.err = nil
	s.info = nil
	s.pair = models.TokenPair{}
	s.mu.Unlock()

	return result
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// tokenListener переводит события менеджера токенов в события сессии
type tokenListener struct {
	s *Session
}

func (l tokenListener) OnRegistered(pair models.TokenPair) {
	l.s.observers.Notify("user_registered", func(o Observer) { o.OnUserRegistered(pair) })
}

func (l tokenListener) OnRefreshed(pair models.TokenPair) {
	l.s.mu.Lock()
	l.s.pair = pair
	l.s.mu.Unlock()
	l.s.observers.Notify("token_refreshed", func(o Observer) { o.OnTokenRefreshed(pair) })
}

// OnInvalidated: сессия без действующих токенов не может оставаться Ready
func (l tokenListener) OnInvalidated(err error) {
	l.s.mu.Lock()
	if l.s.state != StateUnauthenticated {
		l.s.state = StateFailed
		l.s.err = err
	}
	l.s.mu.Unlock()
	l.s.logger.Warn("session invalidated by token manager", slog.Any("error", err))
}
