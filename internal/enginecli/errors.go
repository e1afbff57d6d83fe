package enginecli

import "fmt"

// Kind is the closed transport/API error taxonomy from §7.
type Kind string

const (
	KindUnauthenticated     Kind = "Unauthenticated"
	KindNotFound            Kind = "NotFound"
	KindValidationBadReq    Kind = "ValidationBadRequest"
	KindRateLimited         Kind = "RateLimited"
	KindServerError         Kind = "ServerError"
	KindNetwork             Kind = "Network"
	KindSessionAuth         Kind = "SessionAuth"
	KindUnknown             Kind = "Unknown"
	KindDeadlineExceeded    Kind = "DeadlineExceeded"
)

// Error is the closed-taxonomy error record every Engine Client operation
// returns on failure.
type Error struct {
	Kind           Kind
	Message        string
	HTTPStatus     int
	RecoverySteps  []string
	Retryable      bool
	RetryAfter     int // seconds, from a Retry-After response header, 0 if absent
	wrapped        error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying transport error, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.wrapped }

func newError(kind Kind, message string, status int, retryable bool, wrapped error) *Error {
	return &Error{
		Kind:          kind,
		Message:       message,
		HTTPStatus:    status,
		Retryable:     retryable,
		RecoverySteps: recoveryStepsFor(kind),
		wrapped:       wrapped,
	}
}

func recoveryStepsFor(kind Kind) []string {
	switch kind {
	case KindUnauthenticated:
		return []string{"verify the configured Engine API key is valid and not expired"}
	case KindRateLimited:
		return []string{"reduce request rate", "honor Retry-After before retrying"}
	case KindServerError:
		return []string{"retry with backoff", "check Engine health"}
	case KindNetwork:
		return []string{"check Engine connectivity", "retry with backoff"}
	case KindNotFound:
		return []string{"verify the resource id is correct"}
	default:
		return nil
	}
}

// classifyStatus maps an HTTP status code to a Kind, mirroring §4.1's
// request contract.
func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == 401 || status == 403:
		return KindUnauthenticated, false
	case status == 404:
		return KindNotFound, false
	case status == 429:
		return KindRateLimited, true
	case status >= 500:
		return KindServerError, true
	case status >= 400:
		return KindValidationBadReq, false
	default:
		return KindUnknown, false
	}
}
