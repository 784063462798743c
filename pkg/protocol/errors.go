package protocol

// ErrorCode is the stable, machine-readable part of an error event.
type ErrorCode string

const (
	CodeAuthMissing       ErrorCode = "AUTH_MISSING"
	CodeAuthMalformed     ErrorCode = "AUTH_MALFORMED"
	CodeAuthExpired       ErrorCode = "AUTH_EXPIRED"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	CodeInternal          ErrorCode = "INTERNAL"
)
