package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/config"
	"thiepcuoi/internal/app"
	"thiepcuoi/pkg/logger"
	"thiepcuoi/pkg/pipeline"
)

func main() {
	// --- 1. 定义命令行参数 ---
	action := flag.String("action", "", "要执行的操作: optimize-images, audit, create-manifest, dump-database, list-images")
	configDir := flag.String("config", ".", "config.yaml 所在目录")
	weddingID := flag.String("wedding-id", "", "用于 list-images 的婚礼ID")
	outputDir := flag.String("output", "./backups", "清单和备份文件的输出目录")
	verbose := flag.Bool("v", false, "输出每张图片的处理详情")

	flag.Parse()

	if *action == "" {
		fmt.Println("错误: 必须提供 -action 参数。")
		flag.Usage()
		os.Exit(1)
	}

	// --- 2. 初始化应用核心组件 ---
	if err := config.LoadConfig(*configDir); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	if err := logger.InitLogger(config.C.Logger); err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}

	// Ctrl+C 会在当前图片处理完后停止批量任务
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, config.C)
	if err != nil {
		slog.Error("FATAL: 初始化失败", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	// --- 3. 根据 action 参数执行相应的功能 ---
	switch *action {
	case "optimize-images":
		images, err := a.DB.Images().GetAll(ctx)
		if err != nil {
			slog.Error("获取图片列表失败", "error", err)
			return
		}
		fmt.Printf("找到 %d 张图片需要检查\n", len(images))
		summary := a.Reoptimizer.ReoptimizeAll(ctx, images)
		if *verbose {
			for _, item := range summary.Items {
				switch item.Status {
				case pipeline.ItemOptimized:
					fmt.Printf("  ✅ %s → %s: %.1fKB → %.1fKB (节省 %.1f%%)\n", item.FileName, item.NewFileName,
						float64(item.BeforeSize)/1024, float64(item.AfterSize)/1024, item.SavedPercent)
				case pipeline.ItemSkipped:
					fmt.Printf("  ⏭️  %s (已是 WebP)\n", item.FileName)
				default:
					fmt.Printf("  ❌ %s: %s\n", item.FileName, item.Error)
				}
			}
		}
		fmt.Println("\n📊 汇总:")
		fmt.Printf("✅ 已压缩: %d\n", summary.OptimizedCount)
		fmt.Printf("⏭️  已跳过: %d\n", summary.SkippedCount)
		fmt.Printf("❌ 失败: %d\n", summary.ErrorCount)
		if summary.Interrupted {
			fmt.Println("⚠️  任务被中断，剩余图片未处理，可以重新运行。")
		}

	case "audit":
		images, err := a.DB.Images().GetAll(ctx)
		if err != nil {
			slog.Error("获取图片列表失败", "error", err)
			return
		}
		report, err := a.Maintenance.Audit(images, a.Assets)
		if err != nil {
			slog.Error("一致性检查失败", "error", err)
			return
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))

	case "create-manifest":
		output, _ := filepath.Abs(*outputDir)
		manifest, err := a.Maintenance.GenerateFileManifest(ctx, a.Assets.Dir(), output)
		if err != nil {
			slog.Error("生成文件清单失败", "error", err)
			return
		}
		slog.Info("文件清单生成成功", "path", manifest)

	case "dump-database":
		output, _ := filepath.Abs(*outputDir)
		archive, err := a.Maintenance.BackupDatabase(ctx, config.C.Database.URI, config.C.Database.Name, output)
		if err != nil {
			slog.Error("数据库备份失败", "error", err)
			return
		}
		slog.Info("数据库备份成功", "path", archive)

	case "list-images":
		objID, err := primitive.ObjectIDFromHex(*weddingID)
		if err != nil {
			fmt.Printf("错误: 无效的 wedding-id: %v\n", err)
			return
		}
		images, err := a.DB.Images().ListByWedding(ctx, objID)
		if err != nil {
			slog.Error("获取图片列表失败", "error", err)
			return
		}
		fmt.Printf("婚礼 %s 共有 %d 张图片:\n", *weddingID, len(images))
		for _, img := range images {
			fmt.Printf("  ID: %s, Category: %s, File: %s, Size: %d\n", img.ID.Hex(), img.Category, img.FileName, img.FileSize)
		}

	default:
		fmt.Printf("错误: 未知的 action '%s'\n", *action)
		flag.Usage()
	}
}
