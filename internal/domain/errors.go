package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned for malformed requests, before any store access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited is returned when a user exceeds the submission ceiling of the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrStateNotFound is returned when the user has no progression state.
	ErrStateNotFound = errors.New("progression state not found")
	// ErrQuestionNotFound indicates the question bank has no matching question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrVersionConflict is returned when the expected state version is stale.
	ErrVersionConflict = errors.New("state version conflict")
	// ErrStoreUnavailable wraps unexpected durable-store failures.
	ErrStoreUnavailable = errors.New("durable store unavailable")
	// ErrUserExists is returned by backends when onboarding an existing user.
	ErrUserExists = errors.New("user already exists")
)

// ValidationError lists the offending fields of a rejected request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", strings.Join(e.Fields, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// VersionConflictError reports the expected and authoritative versions.
type VersionConflictError struct {
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("state version conflict: expected %d, current %d", e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }
