// Package boterr defines the error-kind taxonomy routed through a bot
// group's exception handler, replacing the source's checked-exception
// hierarchy with an explicit, inspectable sum type.
package boterr

import (
	"fmt"
	"log/slog"
)

// Kind tags the category of failure so a handler can decide policy
// (close just this bot, or tear down the whole group) without string
// matching.
type Kind int

const (
	// KindIO covers socket closed, unreachable, or interrupted errors.
	KindIO Kind = iota
	// KindLoginRejected covers an unexpected handshake opcode.
	KindLoginRejected
	// KindProtocol covers an invalid opcode, length-table entry, or
	// bit-access misuse.
	KindProtocol
	// KindConfiguration covers a nil strategy or RSA setup failure;
	// always surfaced synchronously at construction, never via a
	// handler callback.
	KindConfiguration
	// KindFatalLoop covers a reactor failure severe enough to tear
	// down the whole group.
	KindFatalLoop
)

// String renders the kind for logging.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindLoginRejected:
		return "login_rejected"
	case KindProtocol:
		return "protocol"
	case KindConfiguration:
		return "configuration"
	case KindFatalLoop:
		return "fatal_loop"
	default:
		return "unknown"
	}
}

// Error is the concrete error value delivered to a group's exception
// handler (or returned synchronously for KindConfiguration).
type Error struct {
	Kind Kind
	// Bot is the affected username, empty for group-wide faults
	// (e.g. KindFatalLoop).
	Bot string
	Err error
}

func (e *Error) Error() string {
	if e.Bot == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Bot, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind for the given bot (empty for
// group-wide faults).
func New(kind Kind, bot string, err error) *Error {
	return &Error{Kind: kind, Bot: bot, Err: err}
}

// ExceptionHandler receives every KindIO/KindLoginRejected/KindProtocol/
// KindFatalLoop error from a group's reactor goroutine. Callers may
// supply their own implementation via group.WithExceptionHandler; this
// is the "logging/exception sinks... referenced by interface" external
// collaborator spec.md §1 names as out of scope for this library to
// define a policy for.
type ExceptionHandler interface {
	Handle(err *Error)
}

// SlogExceptionHandler is the default ExceptionHandler: it logs the
// fault via log/slog and does nothing else.
type SlogExceptionHandler struct{}

// Handle logs err at Warn, or Error for KindFatalLoop.
func (SlogExceptionHandler) Handle(err *Error) {
	if err.Kind == KindFatalLoop {
		slog.Error("bot exception", "kind", err.Kind, "bot", err.Bot, "err", err.Err)
		return
	}
	slog.Warn("bot exception", "kind", err.Kind, "bot", err.Bot, "err", err.Err)
}
