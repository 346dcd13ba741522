package common

import (
	"context"
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorClass drives the orchestrator's retry-vs-terminal decision.
type ErrorClass int

const (
	// ClassTransient: retry with backoff within the stage budget.
	ClassTransient ErrorClass = iota
	// ClassPermanentInput: corrupt/encrypted/unsupported input, fail immediately.
	ClassPermanentInput
	// ClassSchemaViolation: malformed AI response, repair then fall back.
	ClassSchemaViolation
	// ClassPermanentProvider: the provider rejected the request outright,
	// fail immediately.
	ClassPermanentProvider
	// ClassResourceExhaustion: page/size limits, fail immediately.
	ClassResourceExhaustion
	// ClassInternal: unexpected error, fail after exhausting the budget.
	ClassInternal
)

// InputError marks a document that can never process successfully.
type InputError struct {
	Reason string // "unsupported_format" | "encrypted" | "corrupt"
	Detail string
}

func (e *InputError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// LimitError marks a bounded-resource violation (page count, file size).
type LimitError struct {
	Resource string
	Actual   int64
	Limit    int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s %d exceeds limit %d", e.Resource, e.Actual, e.Limit)
}

// ProviderError is a typed failure from an AI provider call. Category comes
// from the provider's declared error class, never from guesswork.
type ProviderError struct {
	Provider string
	Category string // "rate_limited" | "timeout" | "invalid_request" | "server_error"
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s (status %d): %s", e.Provider, e.Category, e.Status, e.Message)
}

// Retryable reports whether the provider's own error class permits a retry.
func (e *ProviderError) Retryable() bool {
	switch e.Category {
	case "rate_limited", "timeout", "server_error":
		return true
	}
	return false
}

// SchemaError marks an AI response that did not match the expected shape.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "response schema violation: " + e.Detail }

// Classify maps an error to the class consumed by the retry policy.
func Classify(err error) ErrorClass {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return ClassPermanentInput
	}
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return ClassResourceExhaustion
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return ClassSchemaViolation
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Retryable() {
			return ClassTransient
		}
		return ClassPermanentProvider
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassInternal
}
