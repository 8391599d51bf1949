// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger provides the component and level filtered logger used by the codec and wire
// message layers. Messages are handed to a LogSink; the default sink writes through logrus.
package logger

const (
	KeyComponent = "component"
	KeyMessage   = "message"
	KeyError     = "error"
)

// LogSink represents a logging implementation. It is deliberately shaped like the logr.LogSink
// interface so that logr adapters can be used directly.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The level argument is
	// provided for optional logging.
	Info(level int, msg string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, msg string, keysAndValues ...interface{})
}

// Logger filters messages by component and level before passing them to a sink. A nil *Logger
// discards everything.
type Logger struct {
	ComponentLevels map[Component]Level
	Sink            LogSink
}

// New constructs a Logger. If sink is nil, the logrus standard logger is used. Component levels
// read from the environment are applied first; the given maps take precedence in order.
func New(sink LogSink, componentLevels ...map[Component]Level) *Logger {
	levels := mergeComponentLevels(getEnvComponentLevels(), mergeComponentLevels(componentLevels...))

	if sink == nil {
		sink = NewLogrusSink(nil)
	}

	return &Logger{
		ComponentLevels: levels,
		Sink:            sink,
	}
}

// LevelComponentEnabled reports whether the given level is enabled for the component. A level
// configured for ComponentAll applies to components without their own entry.
func (logger *Logger) LevelComponentEnabled(level Level, component Component) bool {
	if logger == nil || logger.Sink == nil || level == OffLevel {
		return false
	}

	if configured, ok := logger.ComponentLevels[component]; ok {
		return configured >= level
	}

	return logger.ComponentLevels[ComponentAll] >= level
}

// Print logs msg with the key/value pairs if the level is enabled for the component.
func (logger *Logger) Print(level Level, component Component, msg string, keysAndValues ...interface{}) {
	if !logger.LevelComponentEnabled(level, component) {
		return
	}

	kv := make([]interface{}, 0, len(keysAndValues)+2)
	kv = append(kv, KeyComponent, component.String())
	kv = append(kv, keysAndValues...)

	logger.Sink.Info(int(level)-DiffToInfo, msg, kv...)
}

// Error logs err at InfoLevel if that level is enabled for the component.
func (logger *Logger) Error(component Component, err error, msg string, keysAndValues ...interface{}) {
	if !logger.LevelComponentEnabled(InfoLevel, component) {
		return
	}

	kv := make([]interface{}, 0, len(keysAndValues)+2)
	kv = append(kv, KeyComponent, component.String())
	kv = append(kv, keysAndValues...)

	logger.Sink.Error(err, msg, kv...)
}
