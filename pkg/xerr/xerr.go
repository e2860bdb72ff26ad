package xerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindBudget        Kind = "budget"
	KindRetrieval     Kind = "retrieval"
	KindGeneration    Kind = "generation"
	KindConfiguration Kind = "configuration"
)

// Stable error codes surfaced to callers and mapped to user-safe messages.
const (
	CodeInvalidQuery          = "INVALID_QUERY"
	CodeContextBudgetExceeded = "CONTEXT_BUDGET_EXCEEDED"
	CodeEmbeddingFailed       = "EMBEDDING_FAILED"
	CodeRetrievalFailed       = "RETRIEVAL_FAILED"
	CodeGenerationFailed      = "GENERATION_FAILED"
	CodeEmptyGeneration       = "EMPTY_GENERATION"
	CodeConfiguration         = "CONFIGURATION_ERROR"
	CodeUnknownProvider       = "UNKNOWN_PROVIDER"
)

// Error is a coded domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Validation(code, msg string) *Error {
	return New(KindValidation, code, msg, nil)
}

func Budget(msg string) *Error {
	return New(KindBudget, CodeContextBudgetExceeded, msg, nil)
}

func Retrieval(code, msg string, err error) *Error {
	return New(KindRetrieval, code, msg, err)
}

func Generation(code, msg string, err error) *Error {
	return New(KindGeneration, code, msg, err)
}

func Configuration(code, msg string) *Error {
	return New(KindConfiguration, code, msg, nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
