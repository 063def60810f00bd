package gridstore

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the record store API.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("gridstore: status=%d type=%s message=%s", e.StatusCode, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("gridstore: status=%d message=%s", e.StatusCode, e.Message)
}

// IsUnprocessable reports whether err is the store's "unprocessable" error
// class, returned when a merge-on-key upsert is not supported for the given
// table or field shape. Callers recover from it via lookup-and-patch.
func IsUnprocessable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}
