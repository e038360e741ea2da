package order

import "fmt"

// ValidationError covers malformed or unsatisfiable booking requests:
// empty seat lists, unknown seats, inactive sessions.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError is returned when the caller is authenticated but not
// allowed: accessing another user's order, or failing the age gate.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// CallbackError is a gateway callback rejection with the HTTP status
// the handler should answer with. Only transport-level problems
// (bad signature, undecodable payload) produce one; business failures
// during reconciliation are logged and acknowledged so the gateway
// stops retrying.
type CallbackError struct {
	Status  int
	Message string
}

func (e *CallbackError) Error() string {
	return e.Message
}
