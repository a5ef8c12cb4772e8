package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger pairs the zap logger used by the adaptation core with a slog
// logger for the HTTP surface. Both write to the same output at the same level.
type Logger struct {
	slog *slog.Logger
	zap  *zap.Logger
}

// Config selects level, encoding and destination of both loggers
type Config struct {
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output    string `yaml:"output" validate:"omitempty,oneof=stdout stderr"`
	AddCaller bool   `yaml:"add_caller"`
	AddStack  bool   `yaml:"add_stack"`
}

// DefaultConfig returns JSON logging at info level on stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// NewLogger builds the zap and slog loggers from config.
func NewLogger(config Config) (*Logger, error) {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Output == "" {
		config.Output = "stdout"
	}

	level := parseLevel(config.Level)
	// the sink lives as long as the process
	sink, _, err := zap.Open(config.Output)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if config.AddCaller {
		opts = append(opts, zap.AddCaller())
	}
	if config.AddStack {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	opts = append(opts, zap.ErrorOutput(sink))

	core := zapcore.NewCore(newEncoder(config.Format), sink, zap.NewAtomicLevelAt(level))
	return &Logger{
		slog: newSlog(config, outputWriter(config.Output)),
		zap:  zap.New(core, opts...),
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		slog: slog.New(slog.NewTextHandler(io.Discard, nil)),
		zap:  zap.NewNop(),
	}
}

func newEncoder(format string) zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(enc)
	}
	return zapcore.NewJSONEncoder(enc)
}

func newSlog(config Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(parseLevel(config.Level))}
	if config.Format == "console" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func outputWriter(output string) io.Writer {
	if output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config level onto zap; unknown names mean info
func parseLevel(name string) zapcore.Level {
	level, err := zapcore.ParseLevel(name)
	if err != nil || level < zapcore.DebugLevel || level > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return level
}

// slogLevel converts between the two scales: zap steps by 1, slog by 4
func slogLevel(level zapcore.Level) slog.Level {
	return slog.Level(4 * int(level))
}

// Named returns a logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		slog: l.slog.With("component", component),
		zap:  l.zap.Named(component),
	}
}

// WithCycle tags every entry with the adaptation cycle
func (l *Logger) WithCycle(cycle uint64, cycleID string) *Logger {
	return &Logger{
		slog: l.slog.With("cycle", cycle, "cycle_id", cycleID),
		zap:  l.zap.With(zap.Uint64("cycle", cycle), zap.String("cycle_id", cycleID)),
	}
}

// LogRequest writes one access log line for the state server
func (l *Logger) LogRequest(method, path string, statusCode int, duration time.Duration) {
	l.slog.Info("request served",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", float64(duration.Microseconds())/1e3,
	)
}

// Sync flushes buffered zap entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) GetSlog() *slog.Logger {
	return l.slog
}

func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
