package logqueue

import "fmt"

// Code identifies the category of a queue-layer error.
type Code string

const (
	CodeOpenTwoHeads   Code = "open_two_heads"
	CodeOpenNoHeads    Code = "open_no_heads"
	CodeDuplicateLogId Code = "duplicate_log_id"
	CodeChainBroken    Code = "chain_broken"
	CodeLogIdNotFound  Code = "log_id_not_found"
	CodeLogIdParse     Code = "log_id_parse"
	CodeTailMismatch   Code = "tail_mismatch"
	CodeUnderlying     Code = "underlying"
)

// Error is the structured error type returned by this package. Errors
// from logfile/block/buffer surface through it unchanged, tagged
// CodeUnderlying.
type Error struct {
	Op    string
	Code  Code
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("logqueue: %s: %s: %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("logqueue: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

func newErr(op string, code Code, inner error) *Error {
	return &Error{Op: op, Code: code, Inner: inner}
}

func wrapUnderlying(op string, inner error) *Error {
	return &Error{Op: op, Code: CodeUnderlying, Inner: inner}
}
