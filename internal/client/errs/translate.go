package errs

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// maxBodyDetail ограничивает размер тела ответа, сохраняемого в деталях ошибки
const maxBodyDetail = 1024

var statusCodes = map[int]Code{
	http.StatusUnauthorized:       CodeInvalidToken,
	http.StatusForbidden:          CodeForbidden,
	http.StatusNotFound:           CodeNotFound,
	http.StatusConflict:           CodeConflict,
	http.StatusTooManyRequests:    CodeTooManyRequests,
	http.StatusBadRequest:         CodeInvalidRequest,
	http.StatusServiceUnavailable: CodeServiceUnavailable,
}

// FromError classifies a failure raised before any HTTP status was received.
// Already-translated errors are returned unchanged, nil stays nil.
func FromError(err error, op Operation) error {
	if err == nil {
		return nil
	}

	// AuthenticationError может оборачивать OperationError, поэтому проверяется первой
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}

	code, reason := classify(err)
	return newOperationError(op, code, 0, reason, errors.WithStack(err))
}

func classify(err error) (Code, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout, "request timed out or was cancelled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout, "request timed out"
	}

	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &urlErr),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return CodeTransportError, fmt.Sprintf("transport failure: %v", err)
	}

	return CodeUnknown, fmt.Sprintf("unexpected failure: %v", err)
}

// FromHTTPResponse maps a non-success status to the taxonomy.
// The body is kept as diagnostic detail only.
func FromHTTPResponse(statusCode int, body []byte, op Operation) *OperationError {
	code, ok := statusCodes[statusCode]
	if !ok {
		code = CodeTransportError
	}

	cause := errors.Newf("unexpected HTTP status %d", statusCode)
	if len(body) > 0 {
		cause = errors.WithDetailf(cause, "response body: %s", truncate(body))
	}

	reason := fmt.Sprintf("%s (HTTP %d)", code, statusCode)
	return newOperationError(op, code, statusCode, reason, cause)
}

// FromMalformedBody reports a success-status body that does not match the expected shape.
func FromMalformedBody(body []byte, op Operation, cause error) *OperationError {
	if cause == nil {
		cause = errors.New("malformed response body")
	}
	cause = errors.WithDetailf(errors.WithStack(cause), "response body: %s", truncate(body))
	return newOperationError(op, CodeInvalidResponse, 0, "invalid response from server", cause)
}

// ValidateRequiredParameter rejects an empty required string before any I/O.
func ValidateRequiredParameter(value, name string, op Operation) error {
	if value != "" {
		return nil
	}
	return InvalidRequest(op, fmt.Sprintf("required parameter %q is empty", name))
}

// truncate ограничивает тело maxBodyDetail байтами; невалидные байты заменяются на U+FFFD
func truncate(body []byte) string {
	if len(body) <= maxBodyDetail {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	// не разрезаем руну на границе: откат не больше чем на UTFMax-1 байт
	end := maxBodyDetail
	for i := 0; i < utf8.UTFMax-1 && end > 0 && !utf8.RuneStart(body[end]); i++ {
		end--
	}
	return strings.ToValidUTF8(string(body[:end]), "\uFFFD") + "...(truncated)"
}

// InvalidRequest rejects a call locally, before any I/O.
func InvalidRequest(op Operation, reason string) *OperationError {
	return newOperationError(op, CodeInvalidRequest, 0, reason, errors.New(reason))
}
