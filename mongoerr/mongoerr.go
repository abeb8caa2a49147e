// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongoerr collects the Transport, Lifecycle, Protocol and Timing
// error kinds that connection, supervisor and cursor report, wrapping
// underlying causes with github.com/pkg/errors the way the rest of this
// tree wraps I/O and encode/decode failures.
package mongoerr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/basinlabs/mongocore/bson"
)

// Kind classifies the taxonomy bucket a Error belongs to, for callers that
// want to branch on category rather than on a specific sentinel.
type Kind string

const (
	KindTransport Kind = "transport"
	KindLifecycle Kind = "lifecycle"
	KindProtocol  Kind = "protocol"
	KindTiming    Kind = "timing"
)

// Error is the common shape of every error this package returns: a Kind, a
// short name identifying the specific condition, optional context, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Name    string
	Context string
	Doc     bson.Document
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.cause != nil:
		return fmt.Sprintf("mongocore: %s: %v", e.Name, e.cause)
	case e.Context != "":
		return fmt.Sprintf("mongocore: %s: %s", e.Name, e.Context)
	default:
		return fmt.Sprintf("mongocore: %s", e.Name)
	}
}

// Cause returns the wrapped error, if any, so github.com/pkg/errors.Cause
// unwraps through it.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/As from the standard library as well.
func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, name string, cause error) *Error {
	return &Error{Kind: kind, Name: name, cause: cause}
}

// Transport errors are fatal to the Connection that produced them.

// ConnectRefused reports that the initial TCP dial to an endpoint failed.
func ConnectRefused(cause error) *Error { return newErr(KindTransport, "ConnectRefused", errors.WithStack(cause)) }

// IoError reports a socket or framing failure that is not more specifically
// classified as WriteFailed or ReadFailed (e.g. a frame decode error).
func IoError(cause error) *Error { return newErr(KindTransport, "IoError", errors.WithStack(cause)) }

// WriteFailed reports that writing a frame to the socket failed.
func WriteFailed(cause error) *Error { return newErr(KindTransport, "WriteFailed", errors.WithStack(cause)) }

// ReadFailed reports that reading a frame from the socket failed.
func ReadFailed(cause error) *Error { return newErr(KindTransport, "ReadFailed", errors.WithStack(cause)) }

// Lifecycle errors describe a Connection or Supervisor that cannot accept
// the request right now.

// NotReady reports that a Connection is not accepting requests: it is not
// in the Ready state, or it closed while the request was being submitted.
func NotReady() *Error { return newErr(KindLifecycle, "NotReady", nil) }

// Shutdown reports that a Supervisor has received Shutdown and no longer
// accepts new work.
func Shutdown() *Error { return newErr(KindLifecycle, "Shutdown", nil) }

// Unreachable reports that an endpoint has reached max_consecutive_failures
// and acquire() is failing fast.
func Unreachable(endpoint string) *Error {
	return &Error{Kind: KindLifecycle, Name: "Unreachable", Context: endpoint}
}

// Protocol errors fail only the affected request or cursor.

// CursorInvalid reports that the server returned CursorNotFound for a
// cursor the Cursor Stream was still driving.
func CursorInvalid() *Error { return newErr(KindProtocol, "CursorInvalid", nil) }

// ServerError reports a QueryFailure reply; doc is the single returned
// document, which carries an "$err" field.
func ServerError(doc bson.Document) *Error {
	return &Error{Kind: KindProtocol, Name: "ServerError", Doc: doc}
}

// Timing errors are per-call.

// Timeout reports that a request's context deadline passed before its Reply
// arrived. A connect attempt that times out is reported as ConnectRefused.
func Timeout() *Error { return newErr(KindTiming, "Timeout", nil) }

// Cancelled reports that the caller cancelled a pending request before it
// completed.
func Cancelled() *Error { return newErr(KindTiming, "Cancelled", nil) }
