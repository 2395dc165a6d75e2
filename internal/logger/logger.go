package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 项目统一日志接口，键值对形式
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志配置
type Options struct {
	Level   string
	Writer  []string
	File    string
	MaxSize int
	Backups int
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New 基于 zerolog 创建日志实例
func New(opt Options) Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	for _, w := range opt.Writer {
		switch strings.ToLower(strings.TrimSpace(w)) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		case "file":
			file := opt.File
			if file == "" {
				file = "logs/locatorcheck.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    orDefault(opt.MaxSize, 10),
				MaxBackups: orDefault(opt.Backups, 3),
				Compress:   true,
			})
		case "json":
			writers = append(writers, os.Stderr)
		}
	}
	var out io.Writer = os.Stderr
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(out).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewNop 返回丢弃所有输出的日志实例
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

// FromZerolog 包装已有的 zerolog 实例，测试中常用
func FromZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *zeroLogger) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *zeroLogger) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *zeroLogger) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

func (l *zeroLogger) Err(err error, msg string, kv ...any) {
	l.zl.Error().Err(err).Fields(kv).Msg(msg)
}

func (l *zeroLogger) With(kv ...any) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(kv).Logger()}
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
