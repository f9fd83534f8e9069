// Package log is leveled logger with attached fields. Records are written
// through Sink; default sink is stdlib log.Logger, that adds time and call site.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	// Fatal logs and exits with code 1.
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	// Panic logs with error level and panics with message.
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	// WithFields returns logger that writes its fields and keyValues in
	// every record. Receiver is not changed.
	WithFields(keyValues LogFields) Logger
	Fields() Fields
}

type LogFields interface {
	Fields() map[string]interface{}
}

type Fields map[string]interface{}

func (f Fields) Fields() map[string]interface{} { return f }

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		panic(fmt.Sprintf("unexpected level: %d", int(l)))
	}
	return levelNames[l]
}

// LevelFromString parses level name. Case insensitive.
func LevelFromString(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil
		}
	}
	return DebugLevel, errors.Errorf("invalid level %q", s)
}

// Sink writes records. callDepth has log.Logger.Output meaning, counted from
// caller of Sink.Output: call site of Logger method is callDepth frames up.
type Sink interface {
	Output(callDepth int, level Level, fields Fields, msg string)
}

const stdFlags = log.LstdFlags | log.Lmicroseconds | log.Lshortfile

func NewLogger(l Level, w io.Writer) Logger {
	return NewLoggerSink(l, stdSink{log.New(w, "", stdFlags)})
}

func NewLoggerSink(l Level, s Sink) Logger {
	return &logger{sink: s, level: l}
}

// NewNop returns logger that drops everything.
func NewNop() Logger {
	return NewLoggerSink(FatalLevel+1, nopSink{})
}

type logger struct {
	sink   Sink
	level  Level
	fields Fields
}

func (l *logger) Fields() Fields { return l.fields }

func (l *logger) WithFields(keyValues LogFields) Logger {
	derived := *l
	derived.fields = mergeFields(l.fields, keyValues.Fields())
	return &derived
}

func mergeFields(base Fields, extra map[string]interface{}) Fields {
	if len(base) == 0 {
		return extra
	}
	merged := make(Fields, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (l *logger) Debug(args ...interface{})                 { l.log(DebugLevel, fmt.Sprint(args...)) }
func (l *logger) Debugf(format string, args ...interface{}) { l.log(DebugLevel, sprintf(format, args)) }
func (l *logger) Info(args ...interface{})                  { l.log(InfoLevel, fmt.Sprint(args...)) }
func (l *logger) Infof(format string, args ...interface{})  { l.log(InfoLevel, sprintf(format, args)) }
func (l *logger) Warn(args ...interface{})                  { l.log(WarnLevel, fmt.Sprint(args...)) }
func (l *logger) Warnf(format string, args ...interface{})  { l.log(WarnLevel, sprintf(format, args)) }
func (l *logger) Error(args ...interface{})                 { l.log(ErrorLevel, fmt.Sprint(args...)) }
func (l *logger) Errorf(format string, args ...interface{}) { l.log(ErrorLevel, sprintf(format, args)) }

func (l *logger) Panic(args ...interface{}) {
	msg := fmt.Sprint(args...)
	l.log(ErrorLevel, msg)
	panic(msg)
}

func (l *logger) Panicf(format string, args ...interface{}) {
	msg := sprintf(format, args)
	l.log(ErrorLevel, msg)
	panic(msg)
}

func (l *logger) Fatal(args ...interface{}) {
	l.log(FatalLevel, fmt.Sprint(args...))
	os.Exit(1)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.log(FatalLevel, sprintf(format, args))
	os.Exit(1)
}

// Frames up from log to call site: log, Logger method, call site.
const methodCallDepth = 3

// log must be called directly from Logger method, so sink gets right call site.
func (l *logger) log(level Level, msg string) {
	if level < l.level {
		return
	}
	l.sink.Output(methodCallDepth, level, l.fields, msg)
}

func sprintf(format string, args []interface{}) string { return fmt.Sprintf(format, args...) }

type stdSink struct {
	std *log.Logger
}

func (s stdSink) Output(callDepth int, level Level, fields Fields, msg string) {
	// Plus this frame.
	s.std.Output(callDepth+1, format(level, fields, msg))
}

type nopSink struct{}

func (nopSink) Output(int, Level, Fields, string) {}

// format makes "LEVEL: {json fields} msg" line. Fields are omitted when empty.
func format(l Level, f Fields, msg string) string {
	var b strings.Builder
	b.WriteString(l.String())
	b.WriteString(": ")
	if len(f) != 0 {
		// Map keys are sorted by encoder, so output is stable.
		fieldsJSON, err := json.Marshal(f)
		if err != nil {
			fieldsJSON = []byte(fmt.Sprintf("%q", fmt.Sprint(map[string]interface{}(f))))
		}
		b.Write(fieldsJSON)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	return b.String()
}
