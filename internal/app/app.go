// Package app 组装服务端和命令行共用的核心组件。
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"thiepcuoi/config"
	"thiepcuoi/pkg/database"
	"thiepcuoi/pkg/database/memory"
	"thiepcuoi/pkg/database/mongo"
	"thiepcuoi/pkg/maintenance"
	"thiepcuoi/pkg/pipeline"
	"thiepcuoi/pkg/storage/local"
)

// App 持有已初始化的存储和流水线组件
type App struct {
	Config      *config.Config
	DB          database.Store
	Assets      *local.Store
	Coordinator *pipeline.Coordinator
	Reoptimizer *pipeline.Reoptimizer
	Maintenance maintenance.Maintenance
}

// OpenStore 按配置中的 driver 打开描述符库并确保索引存在
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (database.Store, error) {
	var (
		db  database.Store
		err error
	)
	switch cfg.Driver {
	case "memory":
		slog.Warn("使用内存数据库，进程退出后数据会丢失")
		db = memory.NewStore()
	case "mongo", "":
		db, err = mongo.NewStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("无法连接到数据库: %w", err)
		}
	default:
		return nil, fmt.Errorf("未知的数据库驱动: %s", cfg.Driver)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("无法创建/验证数据库索引: %w", err)
	}
	return db, nil
}

// New 初始化所有组件
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	assets, err := local.NewStore(cfg.Upload.Dir)
	if err != nil {
		return nil, err
	}
	slog.Info("上传目录已就绪", "dir", assets.Dir())

	logDir, err := filepath.Abs(cfg.Logger.Path)
	if err != nil {
		return nil, fmt.Errorf("无法获取日志目录绝对路径: %w", err)
	}
	maint, err := maintenance.NewMaintenance(logDir, cfg.Optimizer.WorkerCount)
	if err != nil {
		return nil, err
	}

	images := db.Images()
	return &App{
		Config:      cfg,
		DB:          db,
		Assets:      assets,
		Coordinator: pipeline.NewCoordinator(images, assets, cfg.Upload.PublicPrefix),
		Reoptimizer: pipeline.NewReoptimizer(images, assets, cfg.Upload.PublicPrefix, cfg.Optimizer.WorkerCount),
		Maintenance: maint,
	}, nil
}

func (a *App) Close(ctx context.Context) {
	a.Maintenance.Close()
	if err := a.DB.Close(ctx); err != nil {
		slog.Warn("关闭数据库连接失败", "error", err)
	}
}
