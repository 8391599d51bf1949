// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"github.com/ikmak/docwire/internal/logger"
)

// LogLevel is an enumeration representing the supported log severity levels.
type LogLevel int

const (
	// LogLevelOff suppresses logging.
	LogLevelOff LogLevel = LogLevel(logger.OffLevel)

	// LogLevelInfo enables logging of informational messages. These logs are high-level
	// information about failures the library recovered from or reported.
	LogLevelInfo LogLevel = LogLevel(logger.InfoLevel)

	// LogLevelDebug enables logging of debug messages. These logs can be voluminous and are
	// intended for detailed information that may be helpful when debugging an application.
	LogLevelDebug LogLevel = LogLevel(logger.DebugLevel)
)

// LogComponent is an enumeration representing the parts of the library that can be logged.
type LogComponent int

const (
	// LogComponentAll enables logging for all components.
	LogComponentAll LogComponent = LogComponent(logger.ComponentAll)

	// LogComponentSerialization enables class map and known type logging.
	LogComponentSerialization LogComponent = LogComponent(logger.ComponentSerialization)

	// LogComponentWireMessage enables batch splitting and frame decoding logging.
	LogComponentWireMessage LogComponent = LogComponent(logger.ComponentWireMessage)

	// LogComponentCompression enables compressor logging.
	LogComponentCompression LogComponent = LogComponent(logger.ComponentCompression)
)

// LogSink is an interface that can be implemented to provide a custom sink for the library's
// logs.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The level argument is
	// provided for optional logging.
	Info(level int, message string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, message string, keysAndValues ...interface{})
}

// LoggerOptions represent options used to configure logging.
type LoggerOptions struct {
	// ComponentLevels is a map of LogComponent to LogLevel. The LogLevel for a given LogComponent
	// will be used to determine if a log message should be logged.
	ComponentLevels map[LogComponent]LogLevel

	// Sink is the LogSink that will be used to log messages. If this is nil, the library will use
	// the logrus standard logger.
	Sink LogSink
}

// Logger creates a new LoggerOptions instance.
func Logger() *LoggerOptions {
	return &LoggerOptions{
		ComponentLevels: map[LogComponent]LogLevel{},
	}
}

// SetComponentLevel sets the LogLevel value for a LogComponent.
func (opts *LoggerOptions) SetComponentLevel(component LogComponent, level LogLevel) *LoggerOptions {
	if opts.ComponentLevels == nil {
		opts.ComponentLevels = map[LogComponent]LogLevel{}
	}
	opts.ComponentLevels[component] = level

	return opts
}

// SetSink sets the LogSink to use for logging.
func (opts *LoggerOptions) SetSink(sink LogSink) *LoggerOptions {
	opts.Sink = sink

	return opts
}

// NewLogger builds the logger described by opts. Levels from the environment apply to components
// that opts does not configure. A nil opts yields a logger configured from the environment only.
func (opts *LoggerOptions) NewLogger() *logger.Logger {
	if opts == nil {
		return logger.New(nil)
	}

	levels := make(map[logger.Component]logger.Level, len(opts.ComponentLevels))
	for component, level := range opts.ComponentLevels {
		levels[logger.Component(component)] = logger.Level(level)
	}

	var sink logger.LogSink
	if opts.Sink != nil {
		sink = opts.Sink
	}
	return logger.New(sink, levels)
}
