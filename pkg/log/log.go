// Copyright 2024 The Nucleus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the kernel core's leveled logging, backed by logrus.
// Kernel code logs through the package-level helpers; per-task logging goes
// through scoped entries carrying tid and task name fields.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Fields is a set of structured log fields.
type Fields = logrus.Fields

// Entry is a scoped logger.
type Entry = logrus.Entry

// SetLevel sets the global log level. Unknown levels are rejected.
func SetLevel(level string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lv)
	return nil
}

// SetOutput redirects all logging to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// IsLogging returns whether messages at the given level would be emitted.
func IsLogging(level string) bool {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return false
	}
	return logger.IsLevelEnabled(lv)
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an info-level message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warningf logs a warning-level message.
func Warningf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs an error-level message.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// WithFields returns an entry scoped with the given fields.
func WithFields(f Fields) *Entry {
	return logger.WithFields(f)
}

// TaskEntry returns an entry scoped to a task's identity.
func TaskEntry(tid int32, name string) *Entry {
	return logger.WithFields(Fields{
		"tid":  tid,
		"task": name,
	})
}
