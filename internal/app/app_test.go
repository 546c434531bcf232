package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"thiepcuoi/config"
	"thiepcuoi/internal/app"
)

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := app.OpenStore(context.Background(), config.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("未知驱动应该返回错误")
	}
}

func TestNew_MemoryDriver(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Logger:   config.LoggerConfig{Path: filepath.Join(root, "logs")},
		Upload:   config.UploadConfig{Dir: filepath.Join(root, "uploads"), PublicPrefix: "/uploads"},
	}
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(context.Background())

	if a.Assets.Dir() != cfg.Upload.Dir {
		t.Fatalf("Assets.Dir = %s, want %s", a.Assets.Dir(), cfg.Upload.Dir)
	}
	images, err := a.DB.Images().GetAll(context.Background())
	if err != nil || len(images) != 0 {
		t.Fatalf("GetAll = %v, %v", images, err)
	}
}
