package errs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromHTTPResponse(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{http.StatusUnauthorized, CodeInvalidToken},
		{http.StatusForbidden, CodeForbidden},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusTooManyRequests, CodeTooManyRequests},
		{http.StatusBadRequest, CodeInvalidRequest},
		{http.StatusServiceUnavailable, CodeServiceUnavailable},
		{http.StatusInternalServerError, CodeTransportError},
		{http.StatusBadGateway, CodeTransportError},
		{http.StatusTeapot, CodeTransportError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromHTTPResponse(tt.status, []byte(`{"error":"x"}`), OpGetFriends)
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Code)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, OpGetFriends, err.Operation)
			assert.Contains(t, err.Error(), "getting friends")
		})
	}
}

func TestFromHTTPResponse_BodyIsDetail(t *testing.T) {
	err := FromHTTPResponse(http.StatusNotFound, []byte(`{"error":"no such player"}`), OpGetPlayerInfo)

	assert.Contains(t, err.Detail(), "no such player")
	assert.NotContains(t, err.Error(), "no such player")
}

func TestFromHTTPResponse_TruncatesLargeBody(t *testing.T) {
	body := []byte(strings.Repeat("a", maxBodyDetail*3))
	err := FromHTTPResponse(http.StatusBadRequest, body, OpAddFriend)

	assert.Less(t, len(err.Detail()), maxBodyDetail+64)
	assert.Contains(t, err.Detail(), "(truncated)")
}

func TestFromHTTPResponse_TruncatedBodyKeepsText(t *testing.T) {
	tests := []struct {
		name       string
		body       []byte
		wantPrefix string
		wantLen    int
	}{
		{
			name:       "invalid byte at start",
			body:       append([]byte{0xff, 0x1f, 0x8b}, strings.Repeat("b", maxBodyDetail*2)...),
			wantPrefix: "\uFFFD\u001f\uFFFDbbbb",
		},
		{
			name:       "rune split at the cut",
			body:       []byte(strings.Repeat("a", maxBodyDetail-1) + strings.Repeat("é", 8)),
			wantPrefix: strings.Repeat("a", 16),
			wantLen:    maxBodyDetail - 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail := truncate(tt.body)
			assert.True(t, strings.HasPrefix(detail, tt.wantPrefix), detail[:16])
			assert.True(t, strings.HasSuffix(detail, "...(truncated)"))
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantLen, len(strings.TrimSuffix(detail, "...(truncated)")))
			}

			err := FromHTTPResponse(http.StatusBadGateway, tt.body, OpGetFriends)
			assert.Contains(t, err.Detail(), tt.wantPrefix)
		})
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("do: %w", context.DeadlineExceeded), CodeTimeout},
		{"cancelled", context.Canceled, CodeTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, CodeTimeout},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("boom")}, CodeTransportError},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, CodeTransportError},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), CodeTransportError},
		{"unexpected eof", io.ErrUnexpectedEOF, CodeTransportError},
		{"unknown", errors.New("something odd"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromError(tt.err, OpRemoveFriend)

			var opErr *OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.want, opErr.Code)
			assert.Equal(t, 0, opErr.StatusCode)
			assert.Contains(t, opErr.Error(), "removing a friend")
		})
	}
}

func TestFromError_Nil(t *testing.T) {
	assert.NoError(t, FromError(nil, OpGetFriends))
}

func TestFromError_Idempotent(t *testing.T) {
	original := FromHTTPResponse(http.StatusConflict, nil, OpLinkProvider)

	again := FromError(original, OpUnknown)
	assert.Same(t, original, again)

	wrapped := FromError(fmt.Errorf("outer: %w", original), OpUnknown)
	assert.Same(t, original, wrapped)
}

func TestFromError_AuthenticationErrorPassesThrough(t *testing.T) {
	authErr := NewAuthenticationError(BannedUser, "banned", nil, nil)

	got := FromError(authErr, OpRefreshToken)
	assert.Same(t, authErr, got)
	assert.True(t, IsFatal(got))
}

func TestFromError_KeepsCause(t *testing.T) {
	err := FromError(fmt.Errorf("x: %w", context.DeadlineExceeded), OpListLinks)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromMalformedBody(t *testing.T) {
	err := FromMalformedBody([]byte("not json"), OpListLinks, errors.New("invalid character"))

	assert.Equal(t, CodeInvalidResponse, err.Code)
	assert.Contains(t, err.Error(), "listing links")
	assert.Contains(t, err.Detail(), "not json")

	err = FromMalformedBody(nil, OpListLinks, nil)
	assert.Equal(t, CodeInvalidResponse, err.Code)
}

func TestValidateRequiredParameter(t *testing.T) {
	assert.NoError(t, ValidateRequiredParameter("abc", "friendID", OpAddFriend))

	err := ValidateRequiredParameter("", "friendID", OpAddFriend)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidRequest, code)
	assert.Contains(t, err.Error(), "friendID")
	assert.Contains(t, err.Error(), "adding a friend")
}

func TestCodeString(t *testing.T) {
	for code := CodeTimeout; code <= CodeUnknown; code++ {
		assert.NotContains(t, code.String(), "Code(", "code %d has no name", int(code))
	}
	assert.Equal(t, "Code(999)", Code(999).String())
	assert.True(t, CodeTimeout.Retriable())
	assert.False(t, CodeInvalidRequest.Retriable())
}

func TestOperationDescription(t *testing.T) {
	assert.Equal(t, "getting friends", OpGetFriends.Description())
	assert.Equal(t, "getting the friends leaderboard", OpGetFriendsLeaderboard.Description())
	assert.Equal(t, "GetFriends", OpGetFriends.String())
	assert.Equal(t, OpUnknown.Description(), Operation(42).Description())
}

func TestAuthCodes(t *testing.T) {
	assert.Equal(t, AuthCode(100), ClientInvalidUserState)
	assert.Equal(t, AuthCode(106), BannedUser)

	code, ok := ParseAuthCode(105)
	require.True(t, ok)
	assert.Equal(t, EnvironmentMismatch, code)

	_, ok = ParseAuthCode(107)
	assert.False(t, ok)

	assert.True(t, BannedUser.Fatal())
	assert.True(t, EnvironmentMismatch.Fatal())
	assert.False(t, ClientInvalidTokenExpired.Fatal())
}

func TestAuthenticationError_Notifications(t *testing.T) {
	err := NewAuthenticationError(ClientInvalidToken, "", nil, nil)
	assert.NotNil(t, err.Notifications)
	assert.Empty(t, err.Notifications)
	assert.Equal(t, "ClientInvalidToken", err.Message)

	in := []Notification{
		{ID: "n1", CaseID: "CASE-1", Message: "first"},
		{ID: "n2", Message: "no case"},
		{ID: "n3", CaseID: "CASE-3", Message: "third"},
	}
	err = NewAuthenticationError(BannedUser, "banned", in, nil)
	in[0].CaseID = "mutated"

	require.Len(t, err.Notifications, 3)
	assert.Equal(t, []string{"CASE-1", "CASE-3"}, err.Notifications.CaseIDs())
	assert.Contains(t, err.Error(), "106")

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("auth failed", slog.Any("error", err))
	assert.Contains(t, buf.String(), "error.notifications.2.case_id=CASE-3")

	code, ok := AuthCodeOf(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, BannedUser, code)
}
