/*
The logger package wraps zerolog with the small surface the rest of the
library needs: leveled printf-style logging, per-component sub-loggers,
and optional rotating file output.
*/
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Writers that receive human-readable console output. Defaults to
	// stderr when empty and no FilePath is set.
	ConsoleWriters []io.Writer

	// When set, JSON log lines are also written to this file with
	// rotation handled by lumberjack.
	FilePath string

	// Rotation knobs, only used when FilePath is set
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days

	Debug bool
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	if config == nil {
		return nil, fmt.Errorf("logger config must not be nil")
	}

	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{}
	for _, writer := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{Out: writer, NoColor: true})
	}

	if config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}, nil
}

// GetComponentLogger returns a child logger annotated with the given
// component name, e.g. "Websocket" or "TcpTransport".
func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

// AddField returns nothing and mutates the logger's context; used to tag
// a logger with a long-lived identifier such as a connection id.
func (l *Logger) AddField(key string, value string) {
	l.logger = l.logger.With().Str(key, value).Logger()
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...any) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, a ...any) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, a ...any) {
	l.logger.Error().Msgf(format, a...)
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, a ...any) {
	l.logger.Trace().Msgf(format, a...)
}
