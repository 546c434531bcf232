package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"thiepcuoi/config"
)

type ctxKey struct{}

// InitLogger 根据配置初始化全局的 slog 日志记录器。
func InitLogger(cfg config.LoggerConfig) error {
	var logHandler slog.Handler

	logLevel := new(slog.LevelVar)
	if err := setLogLevel(cfg.Level, logLevel); err != nil {
		return err
	}

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if cfg.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	slog.SetDefault(slog.New(logHandler))
	return nil
}

// setLogLevel 将字符串形式的日志级别转换为 slog.Level
func setLogLevel(levelStr string, levelVar *slog.LevelVar) error {
	switch levelStr {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return errors.New("无效的日志级别: " + levelStr)
	}
	return nil
}

// WithContext 把 logger 附加到 context 中，请求链路上的模块通过 FromContext 取出。
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext 返回 context 中的 logger，没有时退回到全局默认 logger。
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Discard 返回一个丢弃所有日志的 logger，主要用于测试。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
