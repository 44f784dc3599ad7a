// Package apperrors defines the error taxonomy shared by the conversation flows,
// the moderation workflow and the storage layer.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the purpose of deciding what the user sees.
type Kind string

const (
	KindUnknown              Kind = "unknown"
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindUnauthorized         Kind = "unauthorized"
	KindExternalPublish      Kind = "external_publish"
	KindExternalTransient    Kind = "external_transient"
	KindConfigurationMissing Kind = "configuration_missing"
)

// Error is a typed application error. MessageID, when set, names the
// localized message shown to the user instead of the generic one for Kind.
type Error struct {
	Kind      Kind
	Message   string
	MessageID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithMessageID creates an error that carries its own user-facing message id.
func WithMessageID(kind Kind, messageID, message string) *Error {
	return &Error{Kind: kind, Message: message, MessageID: messageID}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Transient wraps a failed or timed out store/transport call.
func Transient(message string, cause error) *Error {
	return Wrap(KindExternalTransient, message, cause)
}

// KindOf reports the kind of the first *Error in the chain. Context deadline
// and cancellation errors are treated as transient failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindExternalTransient
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var kindMessages = map[Kind]string{
	KindValidation:           "MsgErrValidation",
	KindNotFound:             "MsgErrNotFound",
	KindInvalidState:         "MsgErrInvalidState",
	KindUnauthorized:         "MsgErrUnauthorized",
	KindExternalPublish:      "MsgErrPublish",
	KindExternalTransient:    "MsgErrTransient",
	KindConfigurationMissing: "MsgErrConfigMissing",
}

// UserMessageID returns the localization id of the reply a user should get for err.
// Raw error text is never exposed; unknown failures map to the general error message.
func UserMessageID(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.MessageID != "" {
		return appErr.MessageID
	}
	if id, ok := kindMessages[KindOf(err)]; ok {
		return id
	}
	return "MsgErrorGeneral"
}

// OrTransient returns err unchanged when it already carries a kind and wraps
// it as a transient failure otherwise. Store and transport errors pass
// through here before they reach a handler.
func OrTransient(message string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return Transient(message, err)
}
