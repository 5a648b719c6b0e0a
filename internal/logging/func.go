package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Func is the minimal sink a host can hand to the supervisor instead of a
// full Logger: one call per line with an already formatted message.
type Func func(level LogLevel, msg string)

// FromFunc adapts fn to the Logger interface. Fields are rendered as
// key=value pairs after the message, sorted by key.
func FromFunc(fn Func) Logger {
	return &funcLogger{fn: fn, fields: map[string]interface{}{}}
}

type funcLogger struct {
	fn        Func
	component string
	fields    map[string]interface{}
}

func (f *funcLogger) Debug(_ context.Context, msg string, fields ...interface{}) {
	f.emit(LevelDebug, nil, msg, fields)
}

func (f *funcLogger) Info(_ context.Context, msg string, fields ...interface{}) {
	f.emit(LevelInfo, nil, msg, fields)
}

func (f *funcLogger) Warn(_ context.Context, err error, msg string, fields ...interface{}) {
	f.emit(LevelWarn, err, msg, fields)
}

func (f *funcLogger) Error(_ context.Context, err error, msg string, fields ...interface{}) {
	f.emit(LevelError, err, msg, fields)
}

func (f *funcLogger) With(fields ...interface{}) Logger {
	merged := make(map[string]interface{}, len(f.fields)+len(fields)/2)
	for k, v := range f.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			merged[key] = fields[i+1]
		}
	}
	return &funcLogger{fn: f.fn, component: f.component, fields: merged}
}

func (f *funcLogger) WithComponent(component string) Logger {
	return &funcLogger{fn: f.fn, component: component, fields: f.fields}
}

func (f *funcLogger) emit(level LogLevel, err error, msg string, fields []interface{}) {
	if f.fn == nil {
		return
	}

	kv := make(map[string]interface{}, len(f.fields)+len(fields)/2)
	for k, v := range f.fields {
		kv[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			kv[key] = fields[i+1]
		}
	}

	var b strings.Builder
	if f.component != "" {
		b.WriteString("[" + f.component + "] ")
	}
	b.WriteString(msg)
	if err != nil {
		b.WriteString(": " + err.Error())
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, kv[k])
	}

	f.fn(level, b.String())
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return FromFunc(nil)
}
