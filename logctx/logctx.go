// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logctx carries a structured logrus.Entry through the connection,
// supervisor and cursor layers so every log line is automatically tagged
// with the endpoint, connection generation and requestId it concerns.
package logctx

import "github.com/sirupsen/logrus"

// Logger is the thin wrapper every long-lived component holds onto. It is
// safe to pass by value; WithField derivatives share the underlying entry's
// output and level but add their own fields.
type Logger struct {
	entry *logrus.Entry
}

// New wraps l in a Logger with no fields set yet. If l is nil,
// logrus.StandardLogger() is used.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{entry: logrus.NewEntry(l)}
}

// WithEndpoint returns a derived Logger tagged with the given endpoint
// address.
func (lg Logger) WithEndpoint(endpoint string) Logger {
	return Logger{entry: lg.entry.WithField("endpoint", endpoint)}
}

// WithGeneration returns a derived Logger tagged with a pool generation
// counter, so log lines from connections invalidated by a prior generation
// bump can be told apart from the current one.
func (lg Logger) WithGeneration(gen uint64) Logger {
	return Logger{entry: lg.entry.WithField("generation", gen)}
}

// WithRequestID returns a derived Logger tagged with a wire requestId.
func (lg Logger) WithRequestID(id int32) Logger {
	return Logger{entry: lg.entry.WithField("requestId", id)}
}

// WithCursorID returns a derived Logger tagged with a cursorID.
func (lg Logger) WithCursorID(id int64) Logger {
	return Logger{entry: lg.entry.WithField("cursorId", id)}
}

// WithError returns a derived Logger carrying err under the "error" field,
// mirroring logrus.Entry.WithError.
func (lg Logger) WithError(err error) Logger {
	return Logger{entry: lg.entry.WithError(err)}
}

func (lg Logger) Debugf(format string, args ...interface{}) { lg.entry.Debugf(format, args...) }
func (lg Logger) Infof(format string, args ...interface{})  { lg.entry.Infof(format, args...) }
func (lg Logger) Warnf(format string, args ...interface{})  { lg.entry.Warnf(format, args...) }
func (lg Logger) Errorf(format string, args ...interface{}) { lg.entry.Errorf(format, args...) }

// Entry exposes the underlying *logrus.Entry for callers that want the full
// logrus API (e.g. WithFields with several keys at once).
func (lg Logger) Entry() *logrus.Entry { return lg.entry }
