package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a configuration string such as "debug" or "WARN" into a LogLevel.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu             sync.RWMutex
	defaultLogger  *slog.Logger
	ctrlLoggerOnce sync.Once
)

// Init configures the process-wide logger. It should be called once at startup,
// before any reconciliation pass runs.
func Init(level LogLevel, format Format, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	mu.Lock()
	defaultLogger = slog.New(handler)
	mu.Unlock()
	slog.SetDefault(defaultLogger)

	// The Kubernetes secret publisher logs through controller-runtime, whose
	// delegating logger only honours the first SetLogger call.
	ctrlLoggerOnce.Do(func() {
		ctrl.SetLogger(logr.FromSlogHandler(handler))
	})
}

// InitForCLI initializes text logging at the given level.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	Init(filterLevel, FormatText, output)
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func logInternal(level LogLevel, subsystem string, err error, extra []slog.Attr, messageFmt string, args ...interface{}) {
	l := logger()
	if l == nil {
		// Not initialized yet; keep errors visible rather than silently dropping them.
		if level >= LevelWarn {
			fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", level, subsystem, fmt.Sprintf(messageFmt, args...))
		}
		return
	}
	if !l.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := make([]slog.Attr, 0, len(extra)+2)
	attrs = append(attrs, slog.String("subsystem", subsystem))
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, nil, messageFmt, args...)
}

// Scope is a subsystem logger bound to a reconciliation pass. Every record it
// emits carries the pass ID so that the lines of one pass can be correlated.
type Scope struct {
	Subsystem string
	PassID    string
}

// ForPass returns a Scope for the given subsystem and pass ID.
func ForPass(subsystem, passID string) Scope {
	return Scope{Subsystem: subsystem, PassID: passID}
}

func (s Scope) attrs() []slog.Attr {
	if s.PassID == "" {
		return nil
	}
	return []slog.Attr{slog.String("pass", s.PassID)}
}

func (s Scope) Debug(messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, s.Subsystem, nil, s.attrs(), messageFmt, args...)
}

func (s Scope) Info(messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, s.Subsystem, nil, s.attrs(), messageFmt, args...)
}

func (s Scope) Warn(messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, s.Subsystem, nil, s.attrs(), messageFmt, args...)
}

func (s Scope) Error(err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, s.Subsystem, err, s.attrs(), messageFmt, args...)
}

type passIDKey struct{}

// WithPassID returns a context carrying the reconciliation pass ID.
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, passIDKey{}, passID)
}

// PassIDFromContext returns the pass ID stored by WithPassID, or "".
func PassIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}

// FromContext returns a Scope for subsystem bound to the pass ID in ctx.
func FromContext(ctx context.Context, subsystem string) Scope {
	return ForPass(subsystem, PassIDFromContext(ctx))
}
