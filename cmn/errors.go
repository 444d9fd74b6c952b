// Package cmn holds the small set of cross-cutting types the rest of the
// MDS packages depend on: error kinds and debug assertions (the mlog
// logger lives in the cmn/mlog subpackage). Nothing here talks to the network, the storage
// engine, or the backend.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an MDS error onto the wire per spec §7. Every error that
// crosses an RPC boundary carries one of these.
type Kind int

const (
	KindGeneric Kind = iota
	KindOwnerTagMismatch
	KindNamespaceGone
	KindSlaveRejectedWrite
	KindWrongRole
	KindStorage
	KindProtocol
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindOwnerTagMismatch:
		return "OwnerTagMismatch"
	case KindNamespaceGone:
		return "NamespaceGone"
	case KindSlaveRejectedWrite:
		return "SlaveRejectedWrite"
	case KindWrongRole:
		return "WrongRole"
	case KindStorage:
		return "Storage"
	case KindProtocol:
		return "Protocol"
	case KindTransport:
		return "Transport"
	default:
		return "Generic"
	}
}

// Error is the canonical MDS error: a Kind plus a cause. Cause() unwraps to
// whatever the storage engine or backend actually returned, so callers that
// care only about the kind can use errors.Is/As against the sentinels below,
// while callers that want the underlying message can call errors.Cause.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, err: cause}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Cause satisfies github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error {
	if e.err != nil {
		return e.err
	}
	return e
}

// Is lets callers write errors.Is(err, cmn.ErrNamespaceGone) instead of
// type-asserting and comparing Kind by hand.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons; the msg field is irrelevant for Is.
var (
	ErrOwnerTagMismatch  = &Error{Kind: KindOwnerTagMismatch}
	ErrNamespaceGone     = &Error{Kind: KindNamespaceGone}
	ErrSlaveRejectedWrite = &Error{Kind: KindSlaveRejectedWrite}
	ErrWrongRole         = &Error{Kind: KindWrongRole}
)

func OwnerTagMismatch(ns string, want, got uint64) *Error {
	return NewError(KindOwnerTagMismatch, fmt.Sprintf("namespace %q: owner tag mismatch (have %d, got %d)", ns, want, got))
}

func NamespaceGone(ns string) *Error {
	return NewError(KindNamespaceGone, fmt.Sprintf("namespace %q no longer exists on backend", ns))
}

func SlaveRejectedWrite(ns string) *Error {
	return NewError(KindSlaveRejectedWrite, fmt.Sprintf("namespace %q: table is a slave, write rejected", ns))
}

func WrongRole(ns, reason string) *Error {
	return NewError(KindWrongRole, fmt.Sprintf("namespace %q: %s", ns, reason))
}

func Storage(msg string, cause error) *Error {
	return WrapError(KindStorage, msg, cause)
}

func Protocol(msg string) *Error {
	return NewError(KindProtocol, msg)
}

func Transport(msg string, cause error) *Error {
	return WrapError(KindTransport, msg, cause)
}

func Generic(msg string, cause error) *Error {
	return WrapError(KindGeneric, msg, cause)
}

// AsMDSError extracts *Error from an arbitrary error chain, defaulting to a
// Generic wrapper when the chain doesn't carry one -- used at the transport
// boundary where any handler error must become a wire Error response.
func AsMDSError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Generic("unclassified error", err)
}
