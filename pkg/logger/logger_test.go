package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"thiepcuoi/config"
	"thiepcuoi/pkg/logger"
)

func TestInitLogger_RejectsUnknownLevel(t *testing.T) {
	if err := logger.InitLogger(config.LoggerConfig{Level: "verbose"}); err == nil {
		t.Fatalf("未知的日志级别应该返回错误")
	}
	if err := logger.InitLogger(config.LoggerConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
}

func TestFromContext(t *testing.T) {
	if logger.FromContext(context.Background()) != slog.Default() {
		t.Fatalf("空 context 应该返回默认 logger")
	}
	l := logger.Discard()
	ctx := logger.WithContext(context.Background(), l)
	if logger.FromContext(ctx) != l {
		t.Fatalf("FromContext 应该返回附加的 logger")
	}
}
