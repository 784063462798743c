package router

import (
	"errors"
	"fmt"

	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

// RequestError ends a single request and is reported to its sender.
// The connection stays open.
type RequestError struct {
	Code    protocol.ErrorCode
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) *RequestError {
	return &RequestError{Code: protocol.CodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(message string) *RequestError {
	return &RequestError{Code: protocol.CodeUnauthorized, Message: message}
}

func notFound(what string) *RequestError {
	return &RequestError{Code: protocol.CodeNotFound, Message: what + " not found"}
}

// storeFailure classifies an error returned by the store.
func storeFailure(err error, what string) *RequestError {
	if errors.Is(err, store.ErrNotFound) {
		return &RequestError{Code: protocol.CodeNotFound, Message: what + " not found", Err: err}
	}
	return &RequestError{Code: protocol.CodePersistenceFailed, Message: "could not reach the data store", Err: err}
}
