package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession is returned for session-scoped calls made before the node
// has sent its ready frame.
var ErrNoSession = errors.New("node has no session yet")

// RequestError is a non-2xx response from a node.
type RequestError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

var _ error = (*RequestError)(nil)

// errorBody is the error document nodes return on failures.
type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newRequestError(method, path string, status int, body []byte) *RequestError {
	message := http.StatusText(status)
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			message = parsed.Message
		case parsed.Error != "":
			message = parsed.Error
		}
	} else if len(body) > 0 && len(body) < 512 {
		message = string(body)
	}
	return &RequestError{
		Status:  status,
		Method:  method,
		Path:    path,
		Message: message,
	}
}

// StatusOf returns the HTTP status of a RequestError anywhere in err's
// chain, or 0.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}
