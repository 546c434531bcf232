package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sort"
	"sync"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/logger"
	"thiepcuoi/pkg/optimizer"
	"thiepcuoi/pkg/storage"
)

type ItemStatus string

const (
	ItemOptimized ItemStatus = "optimized"
	ItemSkipped   ItemStatus = "skipped"
	ItemError     ItemStatus = "error"
)

// ItemDetail 记录批量处理中单个描述符的结果。
type ItemDetail struct {
	ID           string     `json:"id"`
	FileName     string     `json:"fileName"`
	NewFileName  string     `json:"newFileName,omitempty"`
	Status       ItemStatus `json:"status"`
	BeforeSize   int64      `json:"beforeSize,omitempty"`
	AfterSize    int64      `json:"afterSize,omitempty"`
	SavedPercent float64    `json:"savedPercent,omitempty"`
	Error        string     `json:"error,omitempty"`

	err error
}

// Err 返回失败原因，可以用 errors.Is 判断 ErrMissingAsset / ErrStorage。
func (d ItemDetail) Err() error {
	return d.err
}

// Summary 是一次批量重新压缩的汇总。即使全部失败也总是完整返回。
type Summary struct {
	Total          int          `json:"total"`
	OptimizedCount int          `json:"optimizedCount"`
	SkippedCount   int          `json:"skippedCount"`
	ErrorCount     int          `json:"errorCount"`
	Interrupted    bool         `json:"interrupted"`
	Items          []ItemDetail `json:"items"`
}

// Reoptimizer 把已入库但还不是 WebP 的图片重新压缩。
// 每个描述符独立处理，单项失败不影响其它项；多次运行是幂等的。
type Reoptimizer struct {
	images       DescriptorStore
	assets       storage.AssetStore
	publicPrefix string
	numWorkers   int
}

func NewReoptimizer(images DescriptorStore, assets storage.AssetStore, publicPrefix string, workerCount int) *Reoptimizer {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &Reoptimizer{
		images:       images,
		assets:       assets,
		publicPrefix: publicPrefix,
		numWorkers:   workerCount,
	}
}

// ReoptimizeAll 并发处理所有描述符并汇总结果。处理顺序不确定，计数与顺序无关。
// ctx 取消后不再开始新的项目，已开始的项目会完整结束，此时 Summary.Interrupted 为 true。
func (r *Reoptimizer) ReoptimizeAll(ctx context.Context, images []models.Image) Summary {
	return r.ReoptimizeWithProgress(ctx, images, nil)
}

// ReoptimizeWithProgress 与 ReoptimizeAll 相同，每处理完一项调用一次 onProgress。
// onProgress 只在单个 goroutine 中被调用。
func (r *Reoptimizer) ReoptimizeWithProgress(ctx context.Context, images []models.Image, onProgress func(done, total int)) Summary {
	log := logger.FromContext(ctx)
	summary := Summary{Total: len(images), Items: make([]ItemDetail, 0, len(images))}

	var wg sync.WaitGroup
	jobs := make(chan models.Image)
	results := make(chan ItemDetail, r.numWorkers)

	for i := 0; i < r.numWorkers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, img := range images {
			select {
			case <-ctx.Done():
				return
			case jobs <- img:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for detail := range results {
		switch detail.Status {
		case ItemOptimized:
			summary.OptimizedCount++
			log.Info("图片已重新压缩", "file", detail.FileName, "newFile", detail.NewFileName,
				"before", detail.BeforeSize, "after", detail.AfterSize, "saved", fmt.Sprintf("%.1f%%", detail.SavedPercent))
		case ItemSkipped:
			summary.SkippedCount++
			log.Debug("已是 WebP，跳过", "file", detail.FileName)
		case ItemError:
			summary.ErrorCount++
			log.Warn("重新压缩失败", "file", detail.FileName, "error", detail.Error)
		}
		summary.Items = append(summary.Items, detail)
		if onProgress != nil {
			onProgress(len(summary.Items), summary.Total)
		}
	}

	sort.Slice(summary.Items, func(a, b int) bool {
		return summary.Items[a].FileName < summary.Items[b].FileName
	})
	summary.Interrupted = len(summary.Items) < summary.Total
	log.Info("批量重新压缩完成", "total", summary.Total, "optimized", summary.OptimizedCount,
		"skipped", summary.SkippedCount, "errors", summary.ErrorCount, "interrupted", summary.Interrupted)
	return summary
}

func (r *Reoptimizer) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan models.Image, results chan<- ItemDetail) {
	defer wg.Done()
	for img := range jobs {
		// 取消后把剩余任务排空但不处理
		if ctx.Err() != nil {
			continue
		}
		results <- r.reoptimizeOne(ctx, img)
	}
}

// reoptimizeOne 处理单个描述符，顺序为 "写新文件 → 更新描述符 → 删除旧文件"。
// 失败时描述符和原文件都保持不变。
func (r *Reoptimizer) reoptimizeOne(ctx context.Context, img models.Image) ItemDetail {
	detail := ItemDetail{ID: img.ID.Hex(), FileName: img.FileName}
	fail := func(err error) ItemDetail {
		detail.Status = ItemError
		detail.Error = err.Error()
		detail.err = err
		return detail
	}

	if optimizer.IsOptimized(img.FileName) {
		detail.Status = ItemSkipped
		return detail
	}

	before, err := r.assets.StatFile(img.FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(fmt.Errorf("%w: %s", ErrMissingAsset, img.FileName))
		}
		return fail(fmt.Errorf("%w: %v", ErrStorage, err))
	}
	detail.BeforeSize = before

	res, err := optimizer.Optimize(r.assets.Path(img.FileName), img.Category)
	if err != nil {
		return fail(err)
	}

	newName := optimizer.OptimizedName(img.FileName)
	if err := r.assets.WriteFile(newName, res.Data); err != nil {
		return fail(fmt.Errorf("%w: 写入压缩文件失败: %v", ErrStorage, err))
	}

	updated := img
	describeOptimized(&updated, r.publicPrefix, newName, res)
	if err := r.images.UpdateFile(ctx, &updated); err != nil {
		r.assets.DeleteFile(newName)
		return fail(fmt.Errorf("%w: 更新图片记录失败: %v", ErrStorage, err))
	}

	if err := r.assets.DeleteFile(img.FileName); err != nil {
		logger.FromContext(ctx).Warn("删除旧文件失败", "file", img.FileName, "error", err)
	}

	detail.Status = ItemOptimized
	detail.NewFileName = newName
	detail.AfterSize = res.Size()
	if before > 0 {
		detail.SavedPercent = (1 - float64(detail.AfterSize)/float64(before)) * 100
	}
	return detail
}
