// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes log messages through a logrus logger. Key/value pairs become logrus fields.
type LogrusSink struct {
	log *logrus.Logger
}

var _ LogSink = &LogrusSink{}

// NewLogrusSink returns a sink backed by l. If l is nil the logrus standard logger is used.
func NewLogrusSink(l *logrus.Logger) *LogrusSink {
	if l == nil {
		l = logrus.StandardLogger()
	}

	return &LogrusSink{log: l}
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		f[key] = keysAndValues[i+1]
	}

	return f
}

// Info writes msg at debug severity for levels above zero and at info severity otherwise.
func (sink *LogrusSink) Info(level int, msg string, keysAndValues ...interface{}) {
	entry := sink.log.WithFields(fields(keysAndValues))

	if level > 0 {
		entry.Debug(msg)
		return
	}

	entry.Info(msg)
}

// Error writes msg and err at error severity.
func (sink *LogrusSink) Error(err error, msg string, keysAndValues ...interface{}) {
	sink.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}
