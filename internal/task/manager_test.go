package task_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/internal/task"
	"thiepcuoi/pkg/database/memory"
	"thiepcuoi/pkg/pipeline"
	"thiepcuoi/pkg/storage/local"
)

// blockingReoptimizer 一直运行到 ctx 被取消。
type blockingReoptimizer struct {
	started chan struct{}
}

func (b *blockingReoptimizer) ReoptimizeWithProgress(ctx context.Context, images []models.Image, onProgress func(done, total int)) pipeline.Summary {
	close(b.started)
	<-ctx.Done()
	return pipeline.Summary{Total: len(images), Interrupted: len(images) > 0}
}

func waitForStatus(t *testing.T, m *task.Manager, id string, want task.TaskStatus) *task.Task {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		tk, err := m.GetTaskStatus(id)
		if err != nil {
			t.Fatalf("GetTaskStatus: %v", err)
		}
		if tk.Status == want {
			return tk
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("任务 %s 没有进入状态 %s", id, want)
	return nil
}

func TestManager_RunsOptimizeTask(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	assets, err := local.NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{"a.webp", "b.webp"} {
		img := &models.Image{WeddingID: primitive.NewObjectID(), FileName: name, Category: models.CategoryAlbum}
		if err := db.Images().Create(ctx, img); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	m := task.NewManager(ctx, db.Images(), pipeline.NewReoptimizer(db.Images(), assets, "/uploads", 1))
	id, err := m.StartOptimizeTask()
	if err != nil {
		t.Fatalf("StartOptimizeTask: %v", err)
	}

	done := waitForStatus(t, m, id, task.StatusCompleted)
	if done.Progress != 100 || done.EndTime == nil {
		t.Fatalf("完成的任务 = %+v", done)
	}
	if done.Summary == nil || done.Summary.SkippedCount != 2 {
		t.Fatalf("Summary = %+v", done.Summary)
	}

	// 上一个任务结束后可以再次启动
	if _, err := m.StartOptimizeTask(); err != nil {
		t.Fatalf("第二次 StartOptimizeTask: %v", err)
	}
}

func TestManager_SingleTaskAndCancel(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	if err := db.Images().Create(ctx, &models.Image{FileName: "a.jpg", Category: models.CategoryAlbum}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := &blockingReoptimizer{started: make(chan struct{})}
	m := task.NewManager(ctx, db.Images(), r)

	id, err := m.StartOptimizeTask()
	if err != nil {
		t.Fatalf("StartOptimizeTask: %v", err)
	}
	<-r.started

	if _, err := m.StartOptimizeTask(); err == nil {
		t.Fatalf("已有任务运行时不应该启动新任务")
	}
	if err := m.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	tk := waitForStatus(t, m, id, task.StatusCancelled)
	if tk.Summary == nil || !tk.Summary.Interrupted {
		t.Fatalf("取消的任务应该带有中断的汇总: %+v", tk.Summary)
	}
}

func TestManager_UnknownTask(t *testing.T) {
	m := task.NewManager(context.Background(), memory.NewStore().Images(), &blockingReoptimizer{})
	if _, err := m.GetTaskStatus("nope"); err == nil {
		t.Fatalf("GetTaskStatus 应该返回错误")
	}
	if err := m.CancelTask("nope"); err == nil {
		t.Fatalf("CancelTask 应该返回错误")
	}
}

func TestManager_PrunesOldFinishedTasks(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	assets, err := local.NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := task.NewManager(ctx, db.Images(), pipeline.NewReoptimizer(db.Images(), assets, "/uploads", 1))

	var ids []string
	for i := 0; i < 12; i++ {
		id, err := m.StartOptimizeTask()
		if err != nil {
			t.Fatalf("StartOptimizeTask #%d: %v", i, err)
		}
		waitForStatus(t, m, id, task.StatusCompleted)
		ids = append(ids, id)
	}

	if _, err := m.GetTaskStatus(ids[0]); err == nil {
		t.Fatalf("最早的任务应该已被清理")
	}
	for _, id := range ids[1:] {
		if _, err := m.GetTaskStatus(id); err != nil {
			t.Fatalf("最近的任务 %s 不应该被清理: %v", id, err)
		}
	}
}
