package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/iudanet/playerid/internal/client/api"
	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/client/events"
	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/models"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// Manager orchestrates link, unlink and list against the backend.
//
// Calls for the same provider are serialized; different providers run in
// parallel. Once a backend call is issued its result is applied to the cache
// even if the caller stops waiting.
type Manager struct {
	backend    Backend
	tokens     TokenSource
	authorizer Authorizer
	cache      storage.LinkStorage
	observers  *events.Fanout[Observer]
	logger     *slog.Logger
	locks      map[models.Provider]chan struct{}
	locksMu    sync.Mutex
	inflight   sync.WaitGroup
	// cacheGen растет при каждой записи одной привязки в кэш
	cacheGen atomic.Uint64
}

// NewManager создает менеджер привязок
func NewManager(backend Backend, tokens TokenSource, authorizer Authorizer, cache storage.LinkStorage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:    backend,
		tokens:     tokens,
		authorizer: authorizer,
		cache:      cache,
		observers:  events.NewFanout[Observer](logger),
		logger:     logger,
		locks:      make(map[models.Provider]chan struct{}),
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
func (m *Manager) Subscribe(o Observer) func() {
	return m.observers.Subscribe(o)
}

// Wait blocks until backend calls abandoned by their callers have been applied.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

type outcome[T any] struct {
	value T
	err   error
}

// deliver передает результат вызывающему. false, если он уже перестал ждать.
func deliver[T any](done chan<- outcome[T], gone <-chan struct{}, o outcome[T]) bool {
	select {
	case done <- o:
		return true
	case <-gone:
		return false
	}
}

// Link runs the provider handshake and binds the resulting identity.
func (m *Manager) Link(ctx context.Context, provider models.Provider) (*LinkResult, error) {
	result, err := m.link(ctx, provider)
	if err != nil && !errors.Is(err, errAbandoned) {
		m.logger.WarnContext(ctx, "link failed", slog.String("provider", provider.String()), slog.Any("error", err))
		m.observers.Notify("link_failure", func(o Observer) { o.OnLinkFailure(provider, err) })
	}
	return result, unwrapAbandoned(err)
}

func (m *Manager) link(ctx context.Context, provider models.Provider) (*LinkResult, error) {
	if err := validateProvider(provider, errs.OpLinkProvider); err != nil {
		return nil, err
	}

	// 1. Сессия обязательна
	if _, err := m.tokens.EnsureValidAccessToken(ctx); err != nil {
		return nil, errs.FromError(err, errs.OpLinkProvider)
	}

	unlock, err := m.lock(ctx, provider)
	if err != nil {
		return nil, errs.FromError(err, errs.OpLinkProvider)
	}
	release := true
	defer func() {
		if release {
			unlock()
		}
	}()

	// 2. Рукопожатие с провайдером (браузер)
	artifact, err := m.authorizer.Authorize(ctx, provider)
	if err != nil {
		return nil, errs.FromError(fmt.Errorf("%s handshake: %w", provider, err), errs.OpLinkProvider)
	}
	if artifact == nil {
		return nil, errs.FromError(fmt.Errorf("%s handshake returned no artifact", provider), errs.OpLinkProvider)
	}

	// 3. Токен мог истечь, пока пользователь был в браузере
	accessToken, err := m.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return nil, errs.FromError(err, errs.OpLinkProvider)
	}

	// 4. Вызов backend живет дольше ожидания вызывающего
	release = false
	done := make(chan outcome[*LinkResult])
	gone := make(chan struct{})
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer unlock()
		bg := context.WithoutCancel(ctx)
		res, err := m.completeLink(bg, accessToken, provider, artifact)
		if !deliver(done, gone, outcome[*LinkResult]{value: res, err: err}) && err != nil {
			// вызывающий ушел, но наблюдатели должны узнать итог
			m.logger.WarnContext(bg, "abandoned link failed", slog.String("provider", provider.String()), slog.Any("error", err))
			m.observers.Notify("link_failure", func(o Observer) { o.OnLinkFailure(provider, err) })
		}
	}()

	select {
	case <-ctx.Done():
		close(gone)
		return nil, abandoned(errs.FromError(ctx.Err(), errs.OpLinkProvider))
	case res := <-done:
		return res.value, res.err
	}
}

func (m *Manager) completeLink(ctx context.Context, accessToken string, provider models.Provider, artifact *Artifact) (*LinkResult, error) {
	wire, err := m.backend.LinkProvider(ctx, accessToken, provider.String(), pkgapi.LinkRequest{
		AuthCode:     artifact.AuthCode,
		CodeVerifier: artifact.CodeVerifier,
		RedirectURI:  artifact.RedirectURI,
		IDToken:      artifact.IDToken,
	})
	if err != nil {
		return nil, errs.FromError(err, errs.OpLinkProvider)
	}

	link, err := api.LinkFromWire(*wire)
	if err != nil {
		return nil, errs.FromMalformedBody(nil, errs.OpLinkProvider, err)
	}
	if link.Provider != provider {
		return nil, errs.FromMalformedBody(nil, errs.OpLinkProvider,
			fmt.Errorf("backend linked %s instead of %s", link.Provider, provider))
	}

	// insert-or-replace по провайдеру
	_, getErr := m.cache.GetLink(ctx, provider)
	replaced := getErr == nil

	if err := m.cache.SaveLink(ctx, link); err != nil {
		// backend уже привязал аккаунт; кэш догонит на следующем ListLinks
		m.logger.WarnContext(ctx, "failed to cache link", slog.String("provider", provider.String()), slog.Any("error", err))
	}
	m.cacheGen.Add(1)

	m.logger.InfoContext(ctx, "provider linked",
		slog.String("provider", provider.String()),
		slog.Bool("replaced", replaced),
	)
	m.observers.Notify("link_success", func(o Observer) { o.OnLinkSuccess(link) })

	return &LinkResult{Link: link, Replaced: replaced}, nil
}

// Unlink removes the binding of provider. A provider without a cached link
// is rejected with InvalidRequest and no network calls.
func (m *Manager) Unlink(ctx context.Context, provider models.Provider) (*UnlinkResult, error) {
	result, err := m.unlink(ctx, provider)
	if err != nil && !errors.Is(err, errAbandoned) {
		m.logger.WarnContext(ctx, "unlink failed", slog.String("provider", provider.String()), slog.Any("error", err))
		m.observers.Notify("unlink_failure", func(o Observer) { o.OnUnlinkFailure(provider, err) })
	}
	return result, unwrapAbandoned(err)
}

func (m *Manager) unlink(ctx context.Context, provider models.Provider) (*UnlinkResult, error) {
	if err := validateProvider(provider, errs.OpUnlinkProvider); err != nil {
		return nil, err
	}

	unlock, err := m.lock(ctx, provider)
	if err != nil {
		return nil, errs.FromError(err, errs.OpUnlinkProvider)
	}
	release := true
	defer func() {
		if release {
			unlock()
		}
	}()

	// 1. Привязка должна существовать локально
	cached, err := m.cache.GetLink(ctx, provider)
	if err != nil {
		if errors.Is(err, storage.ErrLinkNotFound) {
			return nil, errs.InvalidRequest(errs.OpUnlinkProvider, fmt.Sprintf("provider %s is not linked", provider))
		}
		return nil, errs.FromError(fmt.Errorf("failed to read link cache: %w", err), errs.OpUnlinkProvider)
	}

	accessToken, err := m.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return nil, errs.FromError(err, errs.OpUnlinkProvider)
	}

	release = false
	done := make(chan outcome[*UnlinkResult])
	gone := make(chan struct{})
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer unlock()
		bg := context.WithoutCancel(ctx)
		res, err := m.completeUnlink(bg, accessToken, *cached)
		if !deliver(done, gone, outcome[*UnlinkResult]{value: res, err: err}) && err != nil {
			m.logger.WarnContext(bg, "abandoned unlink failed", slog.String("provider", provider.String()), slog.Any("error", err))
			m.observers.Notify("unlink_failure", func(o Observer) { o.OnUnlinkFailure(provider, err) })
		}
	}()

	select {
	case <-ctx.Done():
		close(gone)
		return nil, abandoned(errs.FromError(ctx.Err(), errs.OpUnlinkProvider))
	case res := <-done:
		return res.value, res.err
	}
}

func (m *Manager) completeUnlink(ctx context.Context, accessToken string, cached models.Link) (*UnlinkResult, error) {
	provider := cached.Provider

	_, err := m.backend.UnlinkProvider(ctx, accessToken, provider.String())
	if err != nil {
		translated := errs.FromError(err, errs.OpUnlinkProvider)
		// backend не знает о привязке: его состояние побеждает кэш
		if code, ok := errs.CodeOf(translated); ok && code == errs.CodeNotFound {
			m.evict(ctx, provider)
		}
		return nil, translated
	}

	m.evict(ctx, provider)

	m.logger.InfoContext(ctx, "provider unlinked", slog.String("provider", provider.String()))
	m.observers.Notify("unlink_success", func(o Observer) { o.OnUnlinkSuccess(cached) })

	return &UnlinkResult{Link: cached}, nil
}

// ListLinks fetches the authoritative link set and replaces the cache with it.
// A snapshot requested before a concurrent Link, Unlink or revocation touched
// the cache is returned to the caller but not written: it may predate that change.
func (m *Manager) ListLinks(ctx context.Context) ([]models.Link, error) {
	accessToken, err := m.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return nil, errs.FromError(err, errs.OpListLinks)
	}

	done := make(chan outcome[[]models.Link])
	gone := make(chan struct{})
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		bg := context.WithoutCancel(ctx)
		links, err := m.completeList(bg, accessToken)
		if !deliver(done, gone, outcome[[]models.Link]{value: links, err: err}) && err != nil {
			m.logger.WarnContext(bg, "abandoned list links failed", slog.Any("error", err))
		}
	}()

	select {
	case <-ctx.Done():
		close(gone)
		return nil, errs.FromError(ctx.Err(), errs.OpListLinks)
	case res := <-done:
		if res.err != nil {
			m.logger.WarnContext(ctx, "list links failed", slog.Any("error", res.err))
		}
		return res.value, res.err
	}
}

func (m *Manager) completeList(ctx context.Context, accessToken string) ([]models.Link, error) {
	gen := m.cacheGen.Load()

	wire, err := m.backend.ListLinks(ctx, accessToken)
	if err != nil {
		return nil, errs.FromError(err, errs.OpListLinks)
	}

	links, err := api.LinksFromWire(wire)
	if err != nil {
		return nil, errs.FromMalformedBody(nil, errs.OpListLinks, err)
	}

	// снимок заменяет кэш целиком, без слияния
	switch {
	case m.cacheGen.Load() != gen:
		m.logger.DebugContext(ctx, "stale link snapshot not cached")
	default:
		if err := m.cache.ReplaceLinks(ctx, links); err != nil {
			m.logger.WarnContext(ctx, "failed to replace link cache", slog.Any("error", err))
		}
	}

	m.observers.Notify("links_listed", func(o Observer) { o.OnLinksListed(links) })
	return links, nil
}

// OnAccessRevoked evicts the provider from the cache without any network call.
// It does not wait for in-flight calls of the same provider.
func (m *Manager) OnAccessRevoked(ctx context.Context, provider models.Provider) error {
	if err := validateProvider(provider, errs.OpUnknown); err != nil {
		return err
	}

	err := m.cache.DeleteLink(ctx, provider)
	m.cacheGen.Add(1)
	if err != nil && !errors.Is(err, storage.ErrLinkNotFound) {
		return fmt.Errorf("failed to evict revoked link: %w", err)
	}

	m.logger.InfoContext(ctx, "provider access revoked", slog.String("provider", provider.String()))
	m.observers.Notify("access_revoked", func(o Observer) { o.OnAccessRevoked(provider) })
	return nil
}

// CachedLinks returns the local mirror without contacting the backend.
func (m *Manager) CachedLinks(ctx context.Context) ([]models.Link, error) {
	return m.cache.ListLinks(ctx)
}

func (m *Manager) evict(ctx context.Context, provider models.Provider) {
	defer m.cacheGen.Add(1)
	if err := m.cache.DeleteLink(ctx, provider); err != nil && !errors.Is(err, storage.ErrLinkNotFound) {
		// кэш догонит на следующем ListLinks
		m.logger.WarnContext(ctx, "failed to evict link", slog.String("provider", provider.String()), slog.Any("error", err))
	}
}

// lock захватывает семафор провайдера; ожидание прерывается контекстом
func (m *Manager) lock(ctx context.Context, provider models.Provider) (func(), error) {
	m.locksMu.Lock()
	sem, ok := m.locks[provider]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[provider] = sem
	}
	m.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func validateProvider(provider models.Provider, op errs.Operation) error {
	if err := errs.ValidateRequiredParameter(provider.String(), "provider", op); err != nil {
		return err
	}
	if parsed, err := models.ParseProvider(provider.String()); err != nil || parsed != provider {
		return errs.InvalidRequest(op, fmt.Sprintf("unsupported provider %q", provider))
	}
	return nil
}

// errAbandoned помечает ошибку ожидания, брошенного вызывающим:
// операция не провалилась, событие о сбое не отправляется
var errAbandoned = errors.New("caller stopped waiting")

type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Is(target error) bool { return target == errAbandoned }

func (e *abandonedError) Unwrap() error { return e.err }

func abandoned(err error) error {
	return &abandonedError{err: err}
}

func unwrapAbandoned(err error) error {
	var ab *abandonedError
	if errors.As(err, &ab) {
		return ab.err
	}
	return err
}
