package errs

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// OperationError is a failed SDK call translated into the operation-level
// taxonomy. One instance per failed call; never persisted.
type OperationError struct {
	cause      error
	Message    string
	Operation  Operation
	Code       Code
	StatusCode int // 0 when no HTTP response was received
}

func (e *OperationError) Error() string {
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.cause
}

// Detail returns the diagnostic context attached to the error (response body etc).
func (e *OperationError) Detail() string {
	if e.cause == nil {
		return ""
	}
	return strings.Join(errors.GetAllDetails(e.cause), "\n")
}

// LogValue implements slog.LogValuer.
func (e *OperationError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.Code.String()),
		slog.String("operation", e.Operation.String()),
		slog.String("message", e.Message),
	}
	if e.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", e.StatusCode))
	}
	return slog.GroupValue(attrs...)
}

func newOperationError(op Operation, code Code, status int, reason string, cause error) *OperationError {
	return &OperationError{
		Message:    fmt.Sprintf("error while %s: %s", op.Description(), reason),
		Operation:  op,
		Code:       code,
		StatusCode: status,
		cause:      cause,
	}
}

// Notification is a support notice attached by the backend to an
// authentication failure. Informational only.
type Notification struct {
	CreatedAt time.Time
	Message   string
	CaseID    string
	PlayerID  string
	ProjectID string
	ID        string
}

// NotificationLog is the ordered list of notices carried by an AuthenticationError.
type NotificationLog []Notification

// CaseIDs returns the non-empty case identifiers in order.
func (l NotificationLog) CaseIDs() []string {
	ids := make([]string, 0, len(l))
	for _, n := range l {
		if n.CaseID != "" {
			ids = append(ids, n.CaseID)
		}
	}
	return ids
}

// LogValue implements slog.LogValuer.
func (l NotificationLog) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(l))
	for i, n := range l {
		attrs = append(attrs, slog.Group(fmt.Sprintf("%d", i),
			slog.String("id", n.ID),
			slog.String("case_id", n.CaseID),
			slog.String("message", n.Message),
		))
	}
	return slog.GroupValue(attrs...)
}

// AuthenticationError is an identity/token-level failure.
// Code is always set; Notifications is never nil.
type AuthenticationError struct {
	cause         error
	Message       string
	Notifications NotificationLog
	Code          AuthCode
}

// NewAuthenticationError создает ошибку аутентификации.
// notifications копируются, nil превращается в пустой список.
func NewAuthenticationError(code AuthCode, message string, notifications []Notification, cause error) *AuthenticationError {
	log := make(NotificationLog, len(notifications))
	copy(log, notifications)

	if message == "" {
		message = code.String()
	}
	if cause != nil {
		cause = errors.WithStack(cause)
	}

	return &AuthenticationError{
		Message:       message,
		Code:          code,
		Notifications: log,
		cause:         cause,
	}
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error %d (%s): %s", int(e.Code), e.Code, e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return e.cause
}

// Fatal reports whether the error ends the session for good.
func (e *AuthenticationError) Fatal() bool {
	return e.Code.Fatal()
}

// LogValue implements slog.LogValuer.
func (e *AuthenticationError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("code", int(e.Code)),
		slog.String("name", e.Code.String()),
		slog.String("message", e.Message),
		slog.Any("notifications", e.Notifications),
	)
}

// CodeOf extracts the operation-level code from err.
func CodeOf(err error) (Code, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code, true
	}
	return 0, false
}

// AuthCodeOf extracts the authentication code from err.
func AuthCodeOf(err error) (AuthCode, bool) {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.Code, true
	}
	return 0, false
}

// IsFatal reports whether err carries a fatal authentication code.
func IsFatal(err error) bool {
	code, ok := AuthCodeOf(err)
	return ok && code.Fatal()
}
