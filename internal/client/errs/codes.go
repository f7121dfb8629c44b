// Package errs is the single vocabulary of failures surfaced by the SDK.
//
// Two closed taxonomies exist side by side: Code for operation-level
// (transport/backend) faults and AuthCode for identity/token faults.
// Every transport outcome is translated into exactly one of them.
package errs

import "fmt"

// Code is an operation-level error code.
type Code int

const (
	CodeTimeout Code = iota + 1
	CodeTransportError
	CodeInvalidToken
	CodeForbidden
	CodeNotFound
	CodeConflict
	CodeTooManyRequests
	CodeInvalidRequest
	CodeServiceUnavailable
	CodeInvalidResponse
	CodeUnknown
)

var codeNames = map[Code]string{
	CodeTimeout:            "Timeout",
	CodeTransportError:     "TransportError",
	CodeInvalidToken:       "InvalidToken",
	CodeForbidden:          "Forbidden",
	CodeNotFound:           "NotFound",
	CodeConflict:           "Conflict",
	CodeTooManyRequests:    "TooManyRequests",
	CodeInvalidRequest:     "InvalidRequest",
	CodeServiceUnavailable: "ServiceUnavailable",
	CodeInvalidResponse:    "InvalidResponse",
	CodeUnknown:            "Unknown",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Retriable reports whether the same request may succeed later without
// any change on the caller's side.
func (c Code) Retriable() bool {
	switch c {
	case CodeTimeout, CodeTransportError, CodeTooManyRequests, CodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// AuthCode is an identity/token-level error code (100-106).
type AuthCode int

const (
	ClientInvalidUserState AuthCode = iota + 100
	ClientInvalidUser
	ClientInvalidToken
	ClientInvalidTokenState
	ClientInvalidTokenExpired
	EnvironmentMismatch
	BannedUser
)

var authCodeNames = map[AuthCode]string{
	ClientInvalidUserState:    "ClientInvalidUserState",
	ClientInvalidUser:         "ClientInvalidUser",
	ClientInvalidToken:        "ClientInvalidToken",
	ClientInvalidTokenState:   "ClientInvalidTokenState",
	ClientInvalidTokenExpired: "ClientInvalidTokenExpired",
	EnvironmentMismatch:       "EnvironmentMismatch",
	BannedUser:                "BannedUser",
}

func (c AuthCode) String() string {
	if name, ok := authCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AuthCode(%d)", int(c))
}

// Fatal reports codes that have no automatic recovery path.
func (c AuthCode) Fatal() bool {
	return c == BannedUser || c == EnvironmentMismatch
}

// ParseAuthCode converts a wire value into an AuthCode.
func ParseAuthCode(n int) (AuthCode, bool) {
	c := AuthCode(n)
	_, ok := authCodeNames[c]
	return c, ok
}

// Operation identifies the SDK call that failed.
type Operation int

const (
	OpUnknown Operation = iota
	OpGetFriends
	OpAddFriend
	OpRemoveFriend
	OpGetFriendsLeaderboard
	OpLinkProvider
	OpUnlinkProvider
	OpListLinks
	OpRegister
	OpRefreshToken
	OpGetPlayerInfo
	OpLogout
)

type opInfo struct {
	name        string
	description string
}

var operations = map[Operation]opInfo{
	OpUnknown:               {"Unknown", "performing an unknown operation"},
	OpGetFriends:            {"GetFriends", "getting friends"},
	OpAddFriend:             {"AddFriend", "adding a friend"},
	OpRemoveFriend:          {"RemoveFriend", "removing a friend"},
	OpGetFriendsLeaderboard: {"GetFriendsLeaderboard", "getting the friends leaderboard"},
	OpLinkProvider:          {"LinkProvider", "linking a provider"},
	OpUnlinkProvider:        {"UnlinkProvider", "unlinking a provider"},
	OpListLinks:             {"ListLinks", "listing links"},
	OpRegister:              {"Register", "registering the device"},
	OpRefreshToken:          {"RefreshToken", "refreshing the access token"},
	OpGetPlayerInfo:         {"GetPlayerInfo", "getting player info"},
	OpLogout:                {"Logout", "logging out"},
}

func (o Operation) String() string {
	if info, ok := operations[o]; ok {
		return info.name
	}
	return operations[OpUnknown].name
}

// Description is the human-readable gerund used inside error messages.
func (o Operation) Description() string {
	if info, ok := operations[o]; ok {
		return info.description
	}
	return operations[OpUnknown].description
}
