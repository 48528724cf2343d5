package httpapi

import "fmt"

// invalidRequest marks a client-input error that should map to HTTP 400,
// distinct from the underlying core-layer errors that map to 500.
type invalidRequest struct {
	msg string
}

func (e *invalidRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &invalidRequest{msg: fmt.Sprintf(format, args...)}
}
