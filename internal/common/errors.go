// Package common defines the closed error taxonomy shared across all layers
// of vaultshare. Callers should use errors.Is to match the sentinel values
// and Classify to normalize arbitrary failures before they cross an API
// boundary.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the wire-level error code of the taxonomy.
type Kind string

const (
	KindUserNotFound            Kind = "USER_NOT_FOUND"
	KindContainerNotFound       Kind = "CONTAINER_NOT_FOUND"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"
	KindShareExpired            Kind = "SHARE_EXPIRED"
	KindShareLimitExceeded      Kind = "SHARE_LIMIT_EXCEEDED"
	KindShareAlreadyExists      Kind = "SHARE_ALREADY_EXISTS"
	KindInvalidPermissions      Kind = "INVALID_PERMISSIONS"
	KindContainerNotAccessible  Kind = "CONTAINER_NOT_ACCESSIBLE"
	KindSharingDisabled         Kind = "SHARING_DISABLED"
	KindShareNotFound           Kind = "SHARE_NOT_FOUND"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindConflict                Kind = "CONFLICT"
	KindUnknown                 Kind = "UNKNOWN"
)

// Error carries a taxonomy kind plus a retryable hint. The sentinel
// instances below are matched through pointer identity, so wrapping with
// fmt.Errorf("...: %w", ErrShareExpired) keeps errors.Is working.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

var (
	ErrUserNotFound            = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrContainerNotFound       = &Error{Kind: KindContainerNotFound, Message: "container not found"}
	ErrInsufficientPermissions = &Error{Kind: KindInsufficientPermissions, Message: "insufficient permissions"}
	ErrShareExpired            = &Error{Kind: KindShareExpired, Message: "share has expired"}
	ErrShareLimitExceeded      = &Error{Kind: KindShareLimitExceeded, Message: "share limit exceeded"}
	ErrShareAlreadyExists      = &Error{Kind: KindShareAlreadyExists, Message: "share already exists"}
	ErrInvalidPermissions      = &Error{Kind: KindInvalidPermissions, Message: "invalid permissions"}
	ErrContainerNotAccessible  = &Error{Kind: KindContainerNotAccessible, Message: "container is not accessible"}
	ErrSharingDisabled         = &Error{Kind: KindSharingDisabled, Message: "sharing is disabled", Retryable: true}
	ErrShareNotFound           = &Error{Kind: KindShareNotFound, Message: "share not found"}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition, Message: "share is in a terminal state"}
	ErrConflict                = &Error{Kind: KindConflict, Message: "concurrent modification", Retryable: true}

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// Classify maps an arbitrary error onto the taxonomy. Taxonomy errors pass
// through unchanged; everything else becomes UNKNOWN with Retryable derived
// from whether the underlying failure looks transient.
func Classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{
		Kind:      KindUnknown,
		Message:   fmt.Sprintf("internal error: %v", err),
		Retryable: looksTransient(err),
	}
}

func looksTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
