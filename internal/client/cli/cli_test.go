package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/playerid/internal/client/auth"
	"github.com/iudanet/playerid/internal/client/errs"
	"github.com/iudanet/playerid/internal/client/iocli"
	"github.com/iudanet/playerid/internal/client/linking"
	"github.com/iudanet/playerid/internal/client/session"
	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/config"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/pkg/api"
)

const testSecret = "0123456789abcdef-secret"

// captureIO собирает вывод команд в строку
type captureIO struct {
	mu        sync.Mutex
	out       strings.Builder
	passwords []string
}

func newCaptureIO(passwords ...string) (*iocli.IOMock, *captureIO) {
	c := &captureIO{passwords: passwords}
	mock := &iocli.IOMock{
		PrintlnFunc: func(a ...any) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.out.WriteString(fmt.Sprintln(a...))
		},
		PrintfFunc: func(format string, a ...any) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.out.WriteString(fmt.Sprintf(format, a...))
		},
		WriteFunc: func(p []byte) (int, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.out.Write(p)
		},
		ReadPasswordFunc: func(prompt string) (string, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if len(c.passwords) == 0 {
				return "", fmt.Errorf("no input")
			}
			p := c.passwords[0]
			c.passwords = c.passwords[1:]
			return p, nil
		},
	}
	return mock, c
}

func (c *captureIO) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

type fakeDevices struct {
	deviceID string
}

func (d *fakeDevices) SaveDeviceID(_ context.Context, id string) error {
	d.deviceID = id
	return nil
}

func (d *fakeDevices) GetDeviceID(context.Context) (string, error) {
	if d.deviceID == "" {
		return "", storage.ErrDeviceIDNotFound
	}
	return d.deviceID, nil
}

type fakeSession struct {
	startErr   error
	resumeErr  error
	logoutErr  error
	creds      []auth.DeviceCredential
	state      session.State
	info       models.UserInfo
	pair       models.TokenPair
	logoutDone bool
}

func (s *fakeSession) Start(_ context.Context, cred auth.DeviceCredential) (models.UserInfo, error) {
	s.creds = append(s.creds, cred)
	if s.startErr != nil {
		return models.UserInfo{}, s.startErr
	}
	s.state = session.StateReady
	return s.info, nil
}

func (s *fakeSession) Resume(_ context.Context, cred auth.DeviceCredential) (models.UserInfo, error) {
	s.creds = append(s.creds, cred)
	if s.resumeErr != nil {
		return models.UserInfo{}, s.resumeErr
	}
	s.state = session.StateReady
	return s.info, nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.logoutDone = true
	s.state = session.StateUnauthenticated
	return s.logoutErr
}

func (s *fakeSession) State() session.State { return s.state }

func (s *fakeSession) UserInfo() (models.UserInfo, bool) {
	return s.info, s.state == session.StateReady
}

func (s *fakeSession) TokenPair() models.TokenPair { return s.pair }

type fakeLinks struct {
	linkErr error
	links   []models.Link
	linked  []models.Provider
}

func (l *fakeLinks) Link(_ context.Context, p models.Provider) (*linking.LinkResult, error) {
	if l.linkErr != nil {
		return nil, l.linkErr
	}
	l.linked = append(l.linked, p)
	return &linking.LinkResult{Link: models.Link{Provider: p, PartyUserID: "party-1"}, Replaced: true}, nil
}

func (l *fakeLinks) Unlink(_ context.Context, p models.Provider) (*linking.UnlinkResult, error) {
	return &linking.UnlinkResult{Link: models.Link{Provider: p, PartyUserID: "party-1"}}, nil
}

func (l *fakeLinks) ListLinks(context.Context) ([]models.Link, error) { return l.links, nil }

func (l *fakeLinks) CachedLinks(context.Context) ([]models.Link, error) { return l.links, nil }

type fakeFriends struct {
	added   []string
	removed []string
	tokens  []string
}

func (f *fakeFriends) GetFriends(_ context.Context, token string) ([]api.Friend, error) {
	f.tokens = append(f.tokens, token)
	return []api.Friend{{PlayerID: "p-2", Username: "buddy", AddedAt: 1700000000}}, nil
}

func (f *fakeFriends) AddFriend(_ context.Context, token, id string) error {
	f.tokens = append(f.tokens, token)
	f.added = append(f.added, id)
	return nil
}

func (f *fakeFriends) RemoveFriend(_ context.Context, token, id string) error {
	f.tokens = append(f.tokens, token)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeFriends) GetFriendsLeaderboard(_ context.Context, token string) ([]api.LeaderboardEntry, error) {
	f.tokens = append(f.tokens, token)
	return []api.LeaderboardEntry{{Rank: 1, Username: "buddy", Score: 900}, {Rank: 2, Username: "me", Score: 10}}, nil
}

type staticTokens string

func (s staticTokens) EnsureValidAccessToken(context.Context) (string, error) { return string(s), nil }

type fakeListener struct{ runs int }

func (l *fakeListener) Run(ctx context.Context) error {
	l.runs++
	return context.Canceled
}

type fixture struct {
	cli      *Cli
	out      *captureIO
	session  *fakeSession
	links    *fakeLinks
	friends  *fakeFriends
	devices  *fakeDevices
	listener *fakeListener
}

func newFixture(cfg *config.ClientConfig, passwords ...string) *fixture {
	if cfg == nil {
		cfg = &config.ClientConfig{DeviceSecret: testSecret}
	}
	mockIO, out := newCaptureIO(passwords...)
	f := &fixture{
		out:      out,
		session:  &fakeSession{info: models.UserInfo{Username: "player_1", UUID: "user-1"}},
		links:    &fakeLinks{},
		friends:  &fakeFriends{},
		devices:  &fakeDevices{},
		listener: &fakeListener{},
	}
	f.cli = New(cfg, Deps{
		IO:       mockIO,
		Session:  f.session,
		Links:    f.links,
		Friends:  f.friends,
		Tokens:   staticTokens("access-1"),
		Listener: f.listener,
		Devices:  f.devices,
	})
	return f
}

// TestGetDeviceSecret_FromConfig проверяет секрет из окружения/конфига
func TestGetDeviceSecret_FromConfig(t *testing.T) {
	f := newFixture(&config.ClientConfig{DeviceSecret: "from-env-secret-123"})

	secret, err := f.cli.getDeviceSecret(false)
	require.NoError(t, err)
	assert.Equal(t, "from-env-secret-123", secret)
}

// TestGetDeviceSecret_FromFile проверяет чтение секрета из файла
func TestGetDeviceSecret_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("from-file-secret-456\n"), 0o600))

	f := newFixture(&config.ClientConfig{DeviceSecretFile: path})
	secret, err := f.cli.getDeviceSecret(false)
	require.NoError(t, err)
	assert.Equal(t, "from-file-secret-456", secret)
}

// TestGetDeviceSecret_Priority: значение из окружения важнее файла
func TestGetDeviceSecret_Priority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("from-file-secret-456"), 0o600))

	f := newFixture(&config.ClientConfig{DeviceSecret: "from-env-secret-123", DeviceSecretFile: path})
	secret, err := f.cli.getDeviceSecret(false)
	require.NoError(t, err)
	assert.Equal(t, "from-env-secret-123", secret)
}

func TestGetDeviceSecret_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	f := newFixture(&config.ClientConfig{DeviceSecretFile: path})
	_, err := f.cli.getDeviceSecret(false)
	assert.ErrorContains(t, err, "secret file is empty")
}

func TestGetDeviceSecret_PromptConfirmation(t *testing.T) {
	f := newFixture(&config.ClientConfig{}, testSecret, "different-secret-xyz")
	_, err := f.cli.getDeviceSecret(true)
	assert.ErrorContains(t, err, "secrets do not match")

	f = newFixture(&config.ClientConfig{}, testSecret, testSecret)
	secret, err := f.cli.getDeviceSecret(true)
	require.NoError(t, err)
	assert.Equal(t, testSecret, secret)
}

func TestRegister_GeneratesDeviceID(t *testing.T) {
	f := newFixture(nil)

	require.NoError(t, f.cli.Run(context.Background(), "register", nil))

	require.NotEmpty(t, f.devices.deviceID)
	require.Len(t, f.session.creds, 1)
	assert.Equal(t, f.devices.deviceID, f.session.creds[0].DeviceID)
	assert.Equal(t, testSecret, f.session.creds[0].Secret)
	assert.Contains(t, f.out.String(), "Registration successful")
	assert.Contains(t, f.out.String(), "player_1")
}

func TestRegister_ShortSecretRejected(t *testing.T) {
	f := newFixture(&config.ClientConfig{DeviceSecret: "short"})

	err := f.cli.Run(context.Background(), "register", nil)
	assert.ErrorContains(t, err, "invalid device secret")
	assert.Empty(t, f.session.creds)
}

func TestRun_PrintsNotifications(t *testing.T) {
	f := newFixture(nil)
	f.session.startErr = errs.NewAuthenticationError(errs.BannedUser, "player is banned", []errs.Notification{{
		Message:   "Account suspended",
		CaseID:    "CASE-42",
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}}, nil)

	err := f.cli.Run(context.Background(), "register", nil)
	require.Error(t, err)
	assert.Contains(t, f.out.String(), "[2026-01-02] Account suspended (case CASE-42)")
}

func TestStatus_NotRegistered(t *testing.T) {
	f := newFixture(nil)

	require.NoError(t, f.cli.Run(context.Background(), "status", nil))
	assert.Contains(t, f.out.String(), "Status: Not registered")
	assert.Empty(t, f.session.creds)
}

func TestStatus_StoredSessionMissing(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"
	f.session.resumeErr = fmt.Errorf("failed to load auth data: %w", storage.ErrAuthNotFound)

	require.NoError(t, f.cli.Run(context.Background(), "status", nil))
	assert.Contains(t, f.out.String(), "Status: Not registered")
}

func TestStatus_Ready(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"
	f.session.pair = models.TokenPair{Access: "a", Refresh: "r", IssuedAt: time.Now(), ExpiresIn: time.Hour}
	f.links.links = []models.Link{{Provider: models.ProviderApple, PartyUserID: "a-1"}}

	require.NoError(t, f.cli.Run(context.Background(), "status", nil))
	out := f.out.String()
	assert.Contains(t, out, "Status: ready")
	assert.Contains(t, out, "Username: player_1")
	assert.Contains(t, out, "Time remaining:")
	assert.Contains(t, out, "  - apple")
}

func TestLink(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"

	require.NoError(t, f.cli.Run(context.Background(), "link", []string{"Google"}))
	assert.Equal(t, []models.Provider{models.ProviderGoogle}, f.links.linked)
	assert.Contains(t, f.out.String(), "✓ Linked google account party-1")
	assert.Contains(t, f.out.String(), "replaced")
}

func TestLink_BadArguments(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"

	assert.ErrorContains(t, f.cli.Run(context.Background(), "link", nil), "provider is required")
	assert.ErrorContains(t, f.cli.Run(context.Background(), "link", []string{"myspace"}), "unknown provider")
	assert.Empty(t, f.session.creds)
}

func TestUnlinkAndLinks(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"
	f.links.links = []models.Link{{Provider: models.ProviderGoogle, PartyUserID: "g-1", LinkedAt: time.Unix(1700000000, 0)}}

	require.NoError(t, f.cli.Run(context.Background(), "unlink", []string{"steam"}))
	assert.Contains(t, f.out.String(), "✓ Unlinked steam account")

	require.NoError(t, f.cli.Run(context.Background(), "links", nil))
	assert.Contains(t, f.out.String(), "g-1")
	assert.Contains(t, f.out.String(), "Total: 1 link(s)")
}

func TestFriends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"

	require.NoError(t, f.cli.Run(ctx, "friends", nil))
	assert.Contains(t, f.out.String(), "1. buddy")

	require.NoError(t, f.cli.Run(ctx, "friends", []string{"add", "p-3"}))
	require.NoError(t, f.cli.Run(ctx, "friends", []string{"remove", "p-2"}))
	require.NoError(t, f.cli.Run(ctx, "friends", []string{"leaderboard"}))

	assert.Equal(t, []string{"p-3"}, f.friends.added)
	assert.Equal(t, []string{"p-2"}, f.friends.removed)
	assert.Contains(t, f.out.String(), "900")
	for _, token := range f.friends.tokens {
		assert.Equal(t, "access-1", token)
	}

	assert.ErrorContains(t, f.cli.Run(ctx, "friends", []string{"add"}), "usage")
	assert.ErrorContains(t, f.cli.Run(ctx, "friends", []string{"poke"}), "unknown friends command")
}

func TestListen_StopsOnCancel(t *testing.T) {
	f := newFixture(nil)
	f.devices.deviceID = "device-0001"

	require.NoError(t, f.cli.Run(context.Background(), "listen", nil))
	assert.Equal(t, 1, f.listener.runs)
	assert.Contains(t, f.out.String(), "Stopped.")
}

func TestLogout(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.cli.Run(context.Background(), "logout", nil))
	assert.False(t, f.session.logoutDone)
	assert.Contains(t, f.out.String(), "Not registered")

	f = newFixture(nil)
	f.devices.deviceID = "device-0001"
	f.session.resumeErr = errs.FromHTTPResponse(503, nil, errs.OpGetPlayerInfo)
	require.NoError(t, f.cli.Run(context.Background(), "logout", nil))
	assert.True(t, f.session.logoutDone)
	assert.Contains(t, f.out.String(), "clearing local data only")
	assert.Contains(t, f.out.String(), "Logged out successfully")
}

func TestRun_UnknownCommand(t *testing.T) {
	f := newFixture(nil)
	err := f.cli.Run(context.Background(), "sync", nil)
	assert.ErrorContains(t, err, "unknown command: sync")
	assert.Contains(t, f.out.String(), "Usage:")
}
