/*
 * Copyright 2025 okoshkin.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"strings"
	"sync"

	"github.com/okoshkin/dbmap/utils"
)

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger. The first non-nil logger
// wins; later calls are ignored so libraries cannot hijack an
// application-installed logger.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

// GetLogger returns the package logger, creating the default one on first
// use.
func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	dl := &DefaultLogger{level: LogLevelInfo, logger: utils.NewLogger("DATABASE")}
	globalLoggerMu.Lock()
	if globalLogger == nil {
		globalLogger = dl
	}
	l = globalLogger
	globalLoggerMu.Unlock()
	return l
}

// DefaultLogger adapts the shared logrus logger to the Logger interface,
// rendering variadic fields as key=value pairs.
type DefaultLogger struct {
	mu     sync.RWMutex
	level  LogLevel
	logger *utils.Logger
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug(msg + formatFields(fields...))
	}
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info(msg + formatFields(fields...))
	}
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn(msg + formatFields(fields...))
	}
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	if l.enabled(LogLevelError) {
		l.logger.Error(msg + formatFields(fields...))
	}
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
	utils.SetLoggerLevel("DATABASE", strings.ToLower(level.String()))
}

func (l *DefaultLogger) enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func formatFields(fields ...interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte(' ')
	for i := 0; i+1 < len(fields); i += 2 {
		sb.WriteString(fmt.Sprintf("%v=%v ", fields[i], fields[i+1]))
	}
	return sb.String()
}
