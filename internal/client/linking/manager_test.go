package linking

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/client/storage/boltdb"
	"github.com/iudanet/playerid/internal/models"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// fakeBackend - ручной мок backend API привязок
type fakeBackend struct {
	linkFn      func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error)
	unlinkFn    func(ctx context.Context, provider string) (*pkgapi.Link, error)
	listFn      func(ctx context.Context) ([]pkgapi.Link, error)
	linkCalls   atomic.Int32
	unlinkCalls atomic.Int32
	listCalls   atomic.Int32
}

func (b *fakeBackend) LinkProvider(ctx context.Context, accessToken, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
	b.linkCalls.Add(1)
	if b.linkFn != nil {
		return b.linkFn(ctx, provider, req)
	}
	return &pkgapi.Link{Provider: provider, PartyUserID: provider + "-user", LinkedAt: 1700000000}, nil
}

func (b *fakeBackend) UnlinkProvider(ctx context.Context, accessToken, provider string) (*pkgapi.Link, error) {
	b.unlinkCalls.Add(1)
	if b.unlinkFn != nil {
		return b.unlinkFn(ctx, provider)
	}
	return &pkgapi.Link{Provider: provider}, nil
}

func (b *fakeBackend) ListLinks(ctx context.Context, accessToken string) ([]pkgapi.Link, error) {
	b.listCalls.Add(1)
	if b.listFn != nil {
		return b.listFn(ctx)
	}
	return nil, nil
}

func (b *fakeBackend) networkCalls() int32 {
	return b.linkCalls.Load() + b.unlinkCalls.Load() + b.listCalls.Load()
}

type fakeTokens struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) EnsureValidAccessToken(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "access", nil
}

type fakeAuthorizer struct {
	err   error
	calls atomic.Int32
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, provider models.Provider) (*Artifact, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Artifact{AuthCode: "code-" + provider.String(), CodeVerifier: "verifier"}, nil
}

// eventLog записывает события наблюдателя
type eventLog struct {
	NopObserver
	mu       sync.Mutex
	success  []models.Link
	failures []error
	unlinked []models.Link
	unfailed []error
	listed   [][]models.Link
	revoked  []models.Provider
}

func (e *eventLog) OnLinkSuccess(link models.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.success = append(e.success, link)
}

func (e *eventLog) OnLinkFailure(_ models.Provider, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, err)
}

func (e *eventLog) OnUnlinkSuccess(link models.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unlinked = append(e.unlinked, link)
}

func (e *eventLog) OnUnlinkFailure(_ models.Provider, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unfailed = append(e.unfailed, err)
}

func (e *eventLog) OnLinksListed(links []models.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listed = append(e.listed, links)
}

func (e *eventLog) OnAccessRevoked(p models.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revoked = append(e.revoked, p)
}

type fixture struct {
	manager    *Manager
	backend    *fakeBackend
	tokens     *fakeTokens
	authorizer *fakeAuthorizer
	cache      *boltdb.Storage
	events     *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cache, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	f := &fixture{
		backend:    &fakeBackend{},
		tokens:     &fakeTokens{},
		authorizer: &fakeAuthorizer{},
		cache:      cache,
		events:     &eventLog{},
	}
	f.manager = NewManager(f.backend, f.tokens, f.authorizer, cache, nil)
	f.manager.Subscribe(f.events)
	t.Cleanup(f.manager.Wait)
	return f
}

func (f *fixture) cached(t *testing.T) []models.Link {
	t.Helper()
	links, err := f.manager.CachedLinks(context.Background())
	require.NoError(t, err)
	return links
}

func TestLink_Success(t *testing.T) {
	f := newFixture(t)
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		assert.Equal(t, "google", provider)
		assert.Equal(t, "code-google", req.AuthCode)
		assert.Equal(t, "verifier", req.CodeVerifier)
		return &pkgapi.Link{Provider: "google", PartyUserID: "g-1", LinkedAt: 1700000000, Detail: map[string]any{"email": "a@b.c"}}, nil
	}

	res, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, res.Replaced)
	assert.Equal(t, "g-1", res.Link.PartyUserID)

	links := f.cached(t)
	require.Len(t, links, 1)
	assert.Equal(t, "g-1", links[0].PartyUserID)
	assert.Equal(t, "a@b.c", links[0].Raw["email"])

	require.Len(t, f.events.success, 1)
	assert.Empty(t, f.events.failures)
}

func TestLink_TwiceKeepsOneEntry(t *testing.T) {
	f := newFixture(t)

	first, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, first.Replaced)

	second, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)
	assert.True(t, second.Replaced)

	links := f.cached(t)
	require.Len(t, links, 1)
	assert.Equal(t, models.ProviderGoogle, links[0].Provider)
}

func TestLink_RequiresSession(t *testing.T) {
	f := newFixture(t)
	f.tokens.err = errs.NewAuthenticationError(errs.ClientInvalidUserState, "no active session", nil, nil)

	_, err := f.manager.Link(context.Background(), models.ProviderApple)

	code, ok := errs.AuthCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.ClientInvalidUserState, code)
	assert.Zero(t, f.authorizer.calls.Load())
	assert.Zero(t, f.backend.networkCalls())
	assert.Len(t, f.events.failures, 1)
}

func TestLink_HandshakeCancelled(t *testing.T) {
	f := newFixture(t)
	f.authorizer.err = ErrAuthorizationCancelled

	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)

	assert.ErrorIs(t, err, ErrAuthorizationCancelled)
	assert.Zero(t, f.backend.linkCalls.Load())
	assert.Empty(t, f.cached(t))
	assert.Len(t, f.events.failures, 1)
}

func TestLink_BackendRejection(t *testing.T) {
	f := newFixture(t)
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		return nil, errs.FromHTTPResponse(http.StatusConflict, []byte(`{"error":"linked to another player"}`), errs.OpLinkProvider)
	}

	_, err := f.manager.Link(context.Background(), models.ProviderSteam)

	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeConflict, code)
	assert.Empty(t, f.cached(t))
	require.Len(t, f.events.failures, 1)
	assert.Empty(t, f.events.success)
}

func TestLink_UnsupportedProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Link(context.Background(), models.Provider("myspace"))
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, code)
	assert.Zero(t, f.tokens.calls.Load())
}

func TestUnlink_NotLinkedNoNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Unlink(context.Background(), models.ProviderGoogle)

	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, code)
	assert.Contains(t, err.Error(), "unlinking a provider")
	assert.Zero(t, f.backend.networkCalls())
	assert.Zero(t, f.tokens.calls.Load())
	assert.Len(t, f.events.unfailed, 1)
}

func TestUnlink_Success(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	res, err := f.manager.Unlink(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, res.Link.Provider)
	assert.Empty(t, f.cached(t))
	require.Len(t, f.events.unlinked, 1)
	assert.Equal(t, int32(1), f.backend.unlinkCalls.Load())
}

func TestUnlink_BackendFailureKeepsCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	f.backend.unlinkFn = func(ctx context.Context, provider string) (*pkgapi.Link, error) {
		return nil, errs.FromHTTPResponse(http.StatusServiceUnavailable, nil, errs.OpUnlinkProvider)
	}

	_, err = f.manager.Unlink(context.Background(), models.ProviderGoogle)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeServiceUnavailable, code)
	assert.Len(t, f.cached(t), 1)
	assert.Len(t, f.events.unfailed, 1)
}

func TestUnlink_BackendNotFoundEvicts(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	f.backend.unlinkFn = func(ctx context.Context, provider string) (*pkgapi.Link, error) {
		return nil, errs.FromHTTPResponse(http.StatusNotFound, nil, errs.OpUnlinkProvider)
	}

	_, err = f.manager.Unlink(context.Background(), models.ProviderGoogle)
	require.Error(t, err)
	assert.Empty(t, f.cached(t))
}

func TestListLinks_ReplacesCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	f.backend.listFn = func(ctx context.Context) ([]pkgapi.Link, error) {
		return []pkgapi.Link{{Provider: "apple", PartyUserID: "p1"}}, nil
	}

	links, err := f.manager.ListLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 1)

	cached := f.cached(t)
	require.Len(t, cached, 1)
	assert.Equal(t, models.ProviderApple, cached[0].Provider)
	assert.Equal(t, "p1", cached[0].PartyUserID)
	require.Len(t, f.events.listed, 1)
}

func TestListLinks_MalformedSnapshotKeepsCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	f.backend.listFn = func(ctx context.Context) ([]pkgapi.Link, error) {
		return []pkgapi.Link{{Provider: "myspace", PartyUserID: "x"}}, nil
	}

	_, err = f.manager.ListLinks(context.Background())
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidResponse, code)
	assert.Len(t, f.cached(t), 1)
}

func TestOnAccessRevoked(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)
	calls := f.backend.networkCalls()

	require.NoError(t, f.manager.OnAccessRevoked(context.Background(), models.ProviderGoogle))

	assert.Empty(t, f.cached(t))
	assert.Equal(t, calls, f.backend.networkCalls())
	assert.Equal(t, []models.Provider{models.ProviderGoogle}, f.events.revoked)

	// повторный отзыв не ошибка
	require.NoError(t, f.manager.OnAccessRevoked(context.Background(), models.ProviderGoogle))
}

func TestRevokeDuringInflightLink_LastAppliedWins(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		close(started)
		<-release
		return &pkgapi.Link{Provider: provider, PartyUserID: "g-new"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
		done <- err
	}()

	<-started
	// отзыв применяется немедленно, не дожидаясь Link
	require.NoError(t, f.manager.OnAccessRevoked(context.Background(), models.ProviderGoogle))
	assert.Empty(t, f.cached(t))

	close(release)
	require.NoError(t, <-done)

	// Link завершился последним - его результат в кэше, ровно одна запись
	links := f.cached(t)
	require.Len(t, links, 1)
	assert.Equal(t, "g-new", links[0].PartyUserID)

	// отзыв после Link - кэш пуст
	require.NoError(t, f.manager.OnAccessRevoked(context.Background(), models.ProviderGoogle))
	assert.Empty(t, f.cached(t))
}

func TestLink_SameProviderSerialized(t *testing.T) {
	f := newFixture(t)
	var inflight, maxInflight atomic.Int32
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		n := inflight.Add(1)
		for {
			cur := maxInflight.Load()
			if n <= cur || maxInflight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		return &pkgapi.Link{Provider: provider, PartyUserID: "g"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInflight.Load())
	assert.Len(t, f.cached(t), 1)
}

func TestLink_DifferentProvidersInParallel(t *testing.T) {
	f := newFixture(t)
	var arrived atomic.Int32
	both := make(chan struct{})
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(2 * time.Second):
			return nil, errors.New("providers were serialized")
		}
		return &pkgapi.Link{Provider: provider, PartyUserID: provider + "-1"}, nil
	}

	var wg sync.WaitGroup
	for _, p := range []models.Provider{models.ProviderGoogle, models.ProviderApple} {
		wg.Add(1)
		go func(p models.Provider) {
			defer wg.Done()
			_, err := f.manager.Link(context.Background(), p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Len(t, f.cached(t), 2)
}

func TestLink_AbandonedCallStillApplied(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		close(started)
		<-release
		assert.NoError(t, ctx.Err())
		return &pkgapi.Link{Provider: provider, PartyUserID: "late"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Link(ctx, models.ProviderGoogle)
		done <- err
	}()

	<-started
	cancel()
	err := <-done
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeTimeout, code)

	close(release)
	f.manager.Wait()

	links := f.cached(t)
	require.Len(t, links, 1)
	assert.Equal(t, "late", links[0].PartyUserID)
	assert.Len(t, f.events.success, 1)
	assert.Empty(t, f.events.failures)
}

func TestLink_AbandonedCallFailureNotified(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.linkFn = func(ctx context.Context, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error) {
		close(started)
		<-release
		return nil, errs.FromHTTPResponse(http.StatusConflict, nil, errs.OpLinkProvider)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Link(ctx, models.ProviderGoogle)
		done <- err
	}()

	<-started
	cancel()
	require.Error(t, <-done)
	// ожидание брошено, итог backend еще неизвестен
	assert.Empty(t, f.events.failures)

	close(release)
	f.manager.Wait()

	assert.Empty(t, f.cached(t))
	assert.Empty(t, f.events.success)
	require.Len(t, f.events.failures, 1)
	code, ok := errs.CodeOf(f.events.failures[0])
	require.True(t, ok)
	assert.Equal(t, errs.CodeConflict, code)
}

func TestUnlink_AbandonedCallFailureNotified(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.unlinkFn = func(ctx context.Context, provider string) (*pkgapi.Link, error) {
		close(started)
		<-release
		return nil, errs.FromHTTPResponse(http.StatusServiceUnavailable, nil, errs.OpUnlinkProvider)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Unlink(ctx, models.ProviderGoogle)
		done <- err
	}()

	<-started
	cancel()
	require.Error(t, <-done)

	close(release)
	f.manager.Wait()

	assert.Len(t, f.cached(t), 1)
	assert.Empty(t, f.events.unlinked)
	require.Len(t, f.events.unfailed, 1)
	code, ok := errs.CodeOf(f.events.unfailed[0])
	require.True(t, ok)
	assert.Equal(t, errs.CodeServiceUnavailable, code)
}

func TestListLinks_StaleSnapshotNotCached(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.listFn = func(ctx context.Context) ([]pkgapi.Link, error) {
		close(started)
		<-release
		// снимок сделан до привязки google
		return []pkgapi.Link{}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.ListLinks(context.Background())
		done <- err
	}()

	<-started
	_, err := f.manager.Link(context.Background(), models.ProviderGoogle)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	links := f.cached(t)
	require.Len(t, links, 1)
	assert.Equal(t, models.ProviderGoogle, links[0].Provider)
	assert.Len(t, f.events.listed, 1)

	// следующий снимок снова авторитетен
	f.backend.listFn = func(ctx context.Context) ([]pkgapi.Link, error) {
		return []pkgapi.Link{}, nil
	}
	_, err = f.manager.ListLinks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.cached(t))
}
