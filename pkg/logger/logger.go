package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the gateway, the batch runner and the ingest CLI.
// Entries created with With carry key=value fields that are appended to
// every line, e.g. "doc=3f2a.. batch=91c0..".

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (debug, info, warn, error, fatal; case-insensitive).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(l)
}

// SetOutput redirects log output. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

func parseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().Format(time.RFC3339), strings.ToUpper(lvl))
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(lvl Level, name, fields, format string, v ...interface{}) {
	if lvl < LevelFatal && !shouldLog(lvl) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if fields != "" {
		msg += " " + fields
	}
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Print(header(name) + msg)
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "debug", "", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "info", "", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "warn", "", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "error", "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	output(LevelFatal, "fatal", "", format, v...)
	os.Exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

// Entry is a logger bound to a fixed set of fields.
type Entry struct {
	fields map[string]interface{}
}

// With returns an Entry carrying the given key/value pairs. A trailing key
// without a value is logged as "key=<missing>".
func With(kv ...interface{}) *Entry {
	return (&Entry{}).With(kv...)
}

// With returns a copy of e extended with more key/value pairs.
func (e *Entry) With(kv ...interface{}) *Entry {
	fields := make(map[string]interface{}, len(e.fields)+len(kv)/2)
	for k, v := range e.fields {
		fields[k] = v
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = "<missing>"
		}
	}
	return &Entry{fields: fields}
}

func (e *Entry) render() string {
	if len(e.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.fields[k]))
	}
	return strings.Join(parts, " ")
}

func (e *Entry) Debugf(format string, v ...interface{}) {
	output(LevelDebug, "debug", e.render(), format, v...)
}

func (e *Entry) Infof(format string, v ...interface{}) {
	output(LevelInfo, "info", e.render(), format, v...)
}

func (e *Entry) Warnf(format string, v ...interface{}) {
	output(LevelWarn, "warn", e.render(), format, v...)
}

func (e *Entry) Errorf(format string, v ...interface{}) {
	output(LevelError, "error", e.render(), format, v...)
}
