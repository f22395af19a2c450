// Package log provides centralized logging functionality using zap,
// with console JSON output and a rotated log file under logs/.
package log

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log        *zap.SugaredLogger
	baseLogger *zap.Logger
	buffer     *RingBuffer
	initOnce   sync.Once
)

// Entry is one captured log line, kept for operator-facing diagnostics
// (e.g. a future health check) without the teacher's websocket-subscriber
// mechanism, which existed only to feed its dashboard.
type Entry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// RingBuffer is a thread-safe fixed-size circular buffer of recent Entry
// values.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	next    int
	count   int
}

// NewRingBuffer creates a RingBuffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]Entry, size), size: size}
}

// Add records one entry, overwriting the oldest once full.
func (b *RingBuffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Recent returns up to the buffer's capacity worth of entries, oldest
// first.
func (b *RingBuffer) Recent() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, b.count)
	start := (b.next - b.count + b.size) % b.size
	for i := 0; i < b.count; i++ {
		out = append(out, b.entries[(start+i)%b.size])
	}
	return out
}

// ringBufferCore is a zapcore.Core that mirrors every log entry into a
// RingBuffer, independent of the console/file cores.
type ringBufferCore struct {
	zapcore.LevelEnabler
	buf *RingBuffer
}

func (c *ringBufferCore) With(fields []zapcore.Field) zapcore.Core { return c }

func (c *ringBufferCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *ringBufferCore) Write(e zapcore.Entry, _ []zapcore.Field) error {
	c.buf.Add(Entry{Timestamp: e.Time, Level: e.Level.String(), Message: e.Message})
	return nil
}

func (c *ringBufferCore) Sync() error { return nil }

// Init initializes the package-level logger: JSON to stdout, JSON to a
// lumberjack-rotated file under logs/waterly.log, and a ring buffer.
func Init(debug bool) error {
	buffer = NewRingBuffer(500)

	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "level"
	encoderConfig.MessageKey = "message"
	encoderConfig.CallerKey = "caller"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	fileWriter := &lumberjack.Logger{
		Filename:   "logs/waterly.log",
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(encoder, zapcore.AddSync(fileWriter), level),
		&ringBufferCore{LevelEnabler: level, buf: buffer},
	)

	baseLogger = zap.New(core, zap.AddCaller())
	log = baseLogger.Sugar()
	return nil
}

// ensureInitialized lazily installs a production logger for callers (or
// package-init-order tests) that log before Init runs.
func ensureInitialized() {
	initOnce.Do(func() {
		if baseLogger == nil {
			baseLogger, _ = zap.NewProduction()
			log = baseLogger.Sugar()
			buffer = NewRingBuffer(500)
		}
	})
}

// RecentLogs returns the most recently captured log entries.
func RecentLogs() []Entry {
	ensureInitialized()
	return buffer.Recent()
}

// GetZapLogger returns the base zap logger.
func GetZapLogger() *zap.Logger {
	ensureInitialized()
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance.
func GetSugaredLogger() *zap.SugaredLogger {
	ensureInitialized()
	return log
}

// Sync flushes buffered log entries.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// Package-level convenience functions, mirroring the teacher's log
// package shape.

func Debug(args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Debugf(template, args...)
}

func Info(args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Info(args...)
}

func Infof(template string, args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(template, args...)
}

func Warn(args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Warnw(msg, keysAndValues...)
}

func Error(args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Error(args...)
}

func Errorf(template string, args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(template, args...)
}

func Fatal(args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Fatal(args...)
}

func Fatalf(template string, args ...interface{}) {
	ensureInitialized()
	baseLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Fatalf(template, args...)
}
