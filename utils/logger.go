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

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type PathFormat int

type Logger = logrus.Logger

const (
	PathFormatShortRelative PathFormat = iota
	PathFormatFilenameOnly
	PathFormatFullRelative
)

var (
	defaultConsoleLevel = logrus.DebugLevel
	defaultFileLevel    = logrus.TraceLevel
	loggerRegistryMu    sync.RWMutex
	loggerRegistry      = map[string]*logrus.Logger{}
	fileLogEnabled      = EnvDefaultBool("DBMAP_FILE_LOG", false)
	fileLogDir          = "logs"
	fileLogMaxAgeDays   = 0
	fileLogFormat       = EnvDefaultString("DBMAP_FILE_LOG_FORMAT", "text")
	consoleLogFormat    = EnvDefaultString("DBMAP_CONSOLE_LOG_FORMAT", "text")
)

func ConfigureFileLog(dir string, maxAgeDays int) {
	if dir != "" {
		fileLogDir = dir
	}
	if maxAgeDays >= 0 {
		fileLogMaxAgeDays = maxAgeDays
	}
}

func ConfigureFileLogFormat(format string) {
	s := strings.ToLower(strings.TrimSpace(format))
	if s == "json" {
		fileLogFormat = "json"
	} else {
		fileLogFormat = "text"
	}
}

func ConfigureConsoleLogFormat(format string) {
	s := strings.ToLower(strings.TrimSpace(format))
	if s == "json" {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

type fileWriterHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileWriterHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileWriterHook) Fire(e *logrus.Entry) error {
	if e.Level > defaultFileLevel {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// rollingFileWriter appends to <dir>/<name>-<date>.log and rolls to a fresh
// file at midnight, pruning files older than maxAgeDays.
type rollingFileWriter struct {
	dir        string
	name       string
	maxAgeDays int
	mu         sync.Mutex
	curDate    string
	file       *os.File
}

func (w *rollingFileWriter) ensureOpen(date string) error {
	if w.file != nil && w.curDate == date {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.name, date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.curDate = date
	return nil
}

func (w *rollingFileWriter) cleanup() {
	if w.maxAgeDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.maxAgeDays)
	cutoffMidnight := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.Local)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	prefix := w.name + "-"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fn := e.Name()
		if !strings.HasPrefix(fn, prefix) || !strings.HasSuffix(fn, ".log") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(fn, prefix), ".log")
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if d.Before(cutoffMidnight) {
			_ = os.Remove(filepath.Join(w.dir, fn))
		}
	}
}

func (w *rollingFileWriter) Write(p []byte) (int, error) {
	nowDate := time.Now().Format("2006-01-02")
	w.mu.Lock()
	oldDate := w.curDate
	if err := w.ensureOpen(nowDate); err != nil {
		w.mu.Unlock()
		return 0, err
	}
	if oldDate != nowDate {
		w.cleanup()
	}
	f := w.file
	w.mu.Unlock()
	return f.Write(p)
}

func AddRollingFileHook(l *logrus.Logger, name, dir string, maxAgeDays int) error {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var fileFmt logrus.Formatter
	if fileLogFormat == "json" {
		fileFmt = &JSONFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatFullRelative,
		}
	} else {
		fileFmt = &ColorFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatFullRelative,
			NameWidth:       10,
		}
	}

	l.AddHook(&fileWriterHook{
		writer:    &rollingFileWriter{dir: dir, name: strings.ToLower(name), maxAgeDays: maxAgeDays},
		formatter: fileFmt,
	})
	return nil
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

func maxLevel(a, b logrus.Level) logrus.Level {
	if a >= b {
		return a
	}
	return b
}

func applyBaseLevelToRegistered() {
	base := maxLevel(defaultConsoleLevel, defaultFileLevel)
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(base)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(base)
}

func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(lvl)
	defaultConsoleLevel = lvl
	defaultFileLevel = lvl
}

func SetLoggerLevel(name string, lvlStr string) bool {
	lvl := ParseLogLevel(lvlStr)
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(lvl)
	return true
}

func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	defaultConsoleLevel = lvl
	defaultFileLevel = lvl
	applyBaseLevelToRegistered()
}

func ConfigureConsoleLogLevel(levelStr string) {
	defaultConsoleLevel = ParseLogLevel(levelStr)
	applyBaseLevelToRegistered()
}

func ConfigureFileLogLevel(levelStr string) {
	defaultFileLevel = ParseLogLevel(levelStr)
	applyBaseLevelToRegistered()
}

type consoleWriterHook struct {
	formatter logrus.Formatter
}

func (h *consoleWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *consoleWriterHook) Fire(e *logrus.Entry) error {
	if e.Level > defaultConsoleLevel {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

func NewLogger(name string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(maxLevel(defaultConsoleLevel, defaultFileLevel))
	l.SetReportCaller(true)
	var consoleFmt logrus.Formatter
	if consoleLogFormat == "json" {
		consoleFmt = &JSONFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatFullRelative,
		}
	} else {
		consoleFmt = &ColorFormatter{
			LoggerName:      name,
			TimestampFormat: "2006-01-02 15:04:05.000",
			PathFmt:         PathFormatShortRelative,
			ColorCaller:     true,
			NameWidth:       10,
			CallerWidth:     25,
		}
	}
	l.SetFormatter(consoleFmt)
	l.AddHook(&consoleWriterHook{formatter: l.Formatter})
	if fileLogEnabled {
		_ = AddRollingFileHook(l, name, fileLogDir, fileLogMaxAgeDays)
	}
	RegisterLogger(name, l)
	return l
}

type ColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
	ColorCaller     bool
	NameWidth       int
	CallerWidth     int
}

func (f *ColorFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return "2006-01-02 15:04:05.000"
}

func (f *ColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := time.Now().Format(f.tsFormat())
	lvl := strings.ToUpper(entry.Level.String())
	lvlPad := padLeft(lvl, 7)
	coloredLvl := colorLevel(lvlPad, entry.Level)
	pid := colorMagenta(fmt.Sprintf("%-6d", os.Getpid()))
	thread := colorMagenta("[main]")
	name := limitRunes(f.LoggerName, f.NameWidth)
	namePad := padLeft(name, f.NameWidth)
	cyanName := colorCyan(namePad)
	callerInfo := ""
	if entry.Caller != nil {
		var fileLine string
		switch f.PathFmt {
		case PathFormatFilenameOnly:
			base := filepath.Base(entry.Caller.File)
			fileLine = fmt.Sprintf("%s:%d", base, entry.Caller.Line)
		case PathFormatFullRelative:
			rel := moduleRelative(filepath.ToSlash(entry.Caller.File))
			osRel := filepath.FromSlash(rel)
			fileLine = fmt.Sprintf("%s:%d", osRel, entry.Caller.Line)
		default: // PathFormatShortRelative
			rel := shortRelative(entry.Caller.File)
			fileLine = fmt.Sprintf("%s:%d", rel, entry.Caller.Line)
		}
		padded := fileLine
		if f.CallerWidth > 0 {
			padded = padLeftRunes(fileLine, f.CallerWidth)
		}

		prefix := " "
		if f.ColorCaller {
			callerInfo = colorFaint(prefix + padded)
		} else {
			callerInfo = prefix + padded
		}
	}
	sep := "" + colorFaint(":")
	msg := entry.Message

	line := fmt.Sprintf("%s %s %s - %s %s%s %s %s\n", ts, coloredLvl, pid, thread, cyanName, callerInfo, sep, msg)
	return []byte(line), nil
}

type JSONFormatter struct {
	LoggerName string

	TimestampFormat string

	PathFmt PathFormat
}

func (f *JSONFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return "2006-01-02 15:04:05.000"
}

func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := time.Now().Format(f.tsFormat())
	lvl := strings.ToLower(entry.Level.String())

	caller := ""
	if entry.Caller != nil {
		switch f.PathFmt {
		case PathFormatFilenameOnly:
			base := filepath.Base(entry.Caller.File)
			caller = fmt.Sprintf("%s:%d", base, entry.Caller.Line)
		case PathFormatFullRelative:
			rel := moduleRelative(filepath.ToSlash(entry.Caller.File))
			osRel := filepath.FromSlash(rel)
			caller = fmt.Sprintf("%s:%d", osRel, entry.Caller.Line)
		default:
			rel := shortRelative(entry.Caller.File)
			caller = fmt.Sprintf("%s:%d", rel, entry.Caller.Line)
		}
	}

	type jsonLogRecord struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}

	rec := jsonLogRecord{
		Time:    ts,
		Level:   lvl,
		Logger:  f.LoggerName,
		Caller:  caller,
		Message: entry.Message,
	}

	if len(entry.Data) > 0 {
		fields := make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			fields[k] = v
		}
		rec.Fields = fields
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func padLeft(s string, width int) string { return fmt.Sprintf("%"+fmt.Sprintf("%d", width)+"s", s) }

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func colorWrap(s, code string) string { return code + s + ansiReset }

func colorMagenta(s string) string { return colorWrap(s, ansiMagenta) }

func colorCyan(s string) string { return colorWrap(s, ansiCyan) }

func colorFaint(s string) string { return colorWrap(s, ansiFaint) }

func colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorWrap(s, ansiRed)
	case logrus.WarnLevel:
		return colorWrap(s, ansiYellow)
	case logrus.InfoLevel:
		return colorWrap(s, ansiGreen)
	case logrus.DebugLevel:
		return colorWrap(s, ansiBlue)
	default:
		return colorWrap(s, ansiMagenta)
	}
}

var moduleRootOnce sync.Once
var moduleRoot string

func moduleRelative(p string) string {
	moduleRootOnce.Do(func() {
		moduleRoot = findModuleRootFrom(p)
	})
	if moduleRoot != "" && strings.HasPrefix(p, moduleRoot) {
		rel := strings.TrimPrefix(p, moduleRoot)
		rel = strings.TrimPrefix(rel, "/")
		return rel
	}
	if base := mainModuleBase(); base != "" {
		if idx := strings.Index(p, base); idx >= 0 {
			return p[idx:]
		}
	}
	return p
}

func findModuleRootFrom(p string) string {
	dir := filepath.Dir(p)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.ToSlash(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

var mainModuleBaseOnce sync.Once
var mainModuleBaseCache string

func mainModuleBase() string {
	mainModuleBaseOnce.Do(func() {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Path != "" {
			parts := strings.Split(info.Main.Path, "/")
			mainModuleBaseCache = parts[len(parts)-1]
		}
	})
	return mainModuleBaseCache
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func padLeftRunes(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(r)) + s
}

func shortRelative(p string) string {
	sp := filepath.ToSlash(p)
	rel := moduleRelative(sp)
	parts := strings.Split(rel, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return parts[0]
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
