// 文件: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thiepcuoi/config"
	"thiepcuoi/internal/api"
	"thiepcuoi/internal/app"
	"thiepcuoi/internal/task"
	"thiepcuoi/pkg/logger"
)

func main() {
	configDir := flag.String("config", ".", "config.yaml 所在目录")
	flag.Parse()

	// --- 1. 初始化 ---
	if err := config.LoadConfig(*configDir); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	if err := logger.InitLogger(config.C.Logger); err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. 创建核心服务实例 ---
	a, err := app.New(ctx, config.C)
	if err != nil {
		slog.Error("FATAL: 初始化失败", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	taskManager := task.NewManager(ctx, a.DB.Images(), a.Reoptimizer)

	// --- 3. 设置并启动HTTP服务器 ---
	router := api.RegisterRoutes(api.Deps{
		Config:      config.C,
		ConfigDir:   *configDir,
		DB:          a.DB,
		Assets:      a.Assets,
		Coordinator: a.Coordinator,
		Tasks:       taskManager,
		Maintenance: a.Maintenance,
	})

	server := &http.Server{
		Addr:         config.C.Server.Port,
		Handler:      router,
		ReadTimeout:  config.C.Server.Timeout,
		WriteTimeout: config.C.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP服务器关闭失败", "error", err)
		}
	}()

	slog.Info("HTTP服务器正在启动...", "地址", config.C.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("无法启动HTTP服务器", "error", err)
		os.Exit(1)
	}
}
