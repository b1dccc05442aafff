package service

type ErrorCode string

// InvalidArgument covers malformed engine input, UpstreamUnavailable a failed
// collaborator fetch (never retried here), and Cancelled a caller-initiated
// cancellation whose partial results are discarded. An empty result is not a
// failure and maps to none of these.
const (
	ErrorCodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorCodeCancelled           ErrorCode = "CANCELLED"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeExists              ErrorCode = "ALREADY_EXISTS"
	ErrorCodeInvalidBody         ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified         ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}
