package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

var (
	out = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	mu        sync.RWMutex
	minLevel  = LevelInfo
	overrides = map[string]Level{}
)

func init() {
	if os.Getenv("ENV") == "development" {
		minLevel = LevelDebug
	}
}

// Logger writes lines tagged with the component that produced them
type Logger struct {
	component string
}

func New(component string) *Logger {
	return &Logger{component: component}
}

// SetMinLevel changes the level used by components without an override.
func SetMinLevel(level Level) {
	mu.Lock()
	minLevel = level
	mu.Unlock()
}

// SetOutput redirects every component logger. The terminal client points
// this at a file so log lines never interleave with the chat screen.
func SetOutput(w io.Writer) {
	out.SetOutput(w)
}

// ParseLevel maps "debug", "info", "warn" or "error" to its Level. An
// empty name is LevelInfo.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// ParseLevels reads a level spec such as "info,websocket=debug": a bare
// level sets the default, component=level entries override it.
func ParseLevels(spec string) (Level, map[string]Level, error) {
	def := LevelInfo
	comps := make(map[string]Level)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, ok := strings.Cut(part, "=")
		if !ok {
			l, err := ParseLevel(part)
			if err != nil {
				return def, nil, err
			}
			def = l
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return def, nil, fmt.Errorf("missing component in %q", part)
		}
		l, err := ParseLevel(lvl)
		if err != nil {
			return def, nil, err
		}
		comps[name] = l
	}
	return def, comps, nil
}

// Configure applies a level spec, replacing earlier overrides.
func Configure(spec string) error {
	def, comps, err := ParseLevels(spec)
	if err != nil {
		return err
	}
	mu.Lock()
	minLevel = def
	overrides = comps
	mu.Unlock()
	return nil
}

// Enabled reports whether l writes messages at level.
func (l *Logger) Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	if o, ok := overrides[l.component]; ok {
		return level >= o
	}
	return level >= minLevel
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	out.Printf("[%s][%s] %s", level, l.component, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}
