package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/logger"
	"thiepcuoi/pkg/optimizer"
	"thiepcuoi/pkg/storage"
)

// Upload 是上传层交给流水线的一次上传。
type Upload struct {
	// SourcePath 是已落盘的上传文件。位于上传目录内时沿用它的文件名，
	// 否则生成新的唯一文件名。上传目录内的文件必须是尚未被任何描述符引用的新上传，
	// 成功入库后它会被替换或删除。
	SourcePath   string
	OriginalName string
	Category     string
	WeddingID    primitive.ObjectID
	Order        int
}

// Coordinator 负责单次上传的完整处理：校验、单例清理、转码、落盘和写入描述符。
type Coordinator struct {
	images       DescriptorStore
	assets       storage.AssetStore
	singletons   *SingletonEnforcer
	publicPrefix string
}

func NewCoordinator(images DescriptorStore, assets storage.AssetStore, publicPrefix string) *Coordinator {
	return &Coordinator{
		images:       images,
		assets:       assets,
		singletons:   NewSingletonEnforcer(images, assets),
		publicPrefix: publicPrefix,
	}
}

// Ingest 处理一次上传并返回已持久化的描述符。
//
// 转码失败不会导致上传失败：此时原文件按生成的文件名原样保存，描述符指向原文件。
// 只有输入无效（ErrInvalidInput）或存储不可用（ErrStorage）才返回错误。
func (c *Coordinator) Ingest(ctx context.Context, up Upload) (*models.Image, error) {
	log := logger.FromContext(ctx)

	category, mime, err := c.validate(up)
	if err != nil {
		return nil, err
	}

	baseName, inStore := c.assets.Contains(up.SourcePath)
	// 没有扩展名的文件名无法表明编码格式，按外部文件处理，重新命名
	if inStore && filepath.Ext(baseName) == "" {
		inStore = false
	}
	if inStore {
		if err := c.checkUnreferenced(ctx, baseName); err != nil {
			return nil, err
		}
	} else {
		ext := filepath.Ext(up.SourcePath)
		if ext == "" {
			ext = filepath.Ext(up.OriginalName)
		}
		if ext == "" {
			ext = optimizer.ExtensionFor(mime)
		}
		baseName = optimizer.NewStoredName(ext)
	}

	if category.IsSingleton() {
		unlock := c.singletons.Lock(up.WeddingID, category)
		defer unlock()
		if _, err := c.singletons.EvictPrior(ctx, up.WeddingID, category); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	image := &models.Image{
		WeddingID:    up.WeddingID,
		OriginalName: up.OriginalName,
		Category:     category,
		Order:        up.Order,
	}

	res, err := optimizer.Optimize(up.SourcePath, category)
	if err != nil {
		log.Warn("图片转码失败，保留原文件", "file", baseName, "category", category, "error", err)
		return c.storeOriginal(ctx, image, up.SourcePath, baseName, inStore)
	}
	return c.storeOptimized(ctx, image, up.SourcePath, baseName, inStore, res)
}

// validate 返回解析后的分类和按文件头识别出的 MIME 类型。
func (c *Coordinator) validate(up Upload) (models.Category, string, error) {
	category, err := models.ParseCategory(up.Category)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if up.WeddingID.IsZero() {
		return "", "", fmt.Errorf("%w: 缺少 weddingId", ErrInvalidInput)
	}
	info, err := os.Stat(up.SourcePath)
	if err != nil {
		return "", "", fmt.Errorf("%w: 无法读取上传文件: %v", ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("%w: 上传路径不是文件", ErrInvalidInput)
	}
	mime, err := optimizer.DetectFormat(up.SourcePath)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return category, mime, nil
}

// checkUnreferenced 拒绝已经属于其它描述符的文件：源文件本身和它的 .webp 目标名都不能被占用，
// 否则入库会删除或覆盖别人的文件。
func (c *Coordinator) checkUnreferenced(ctx context.Context, baseName string) error {
	for _, name := range []string{baseName, optimizer.OptimizedName(baseName)} {
		taken, err := c.images.FileNameInUse(ctx, name)
		if err != nil {
			return fmt.Errorf("%w: 查询文件名失败: %v", ErrStorage, err)
		}
		if taken {
			return fmt.Errorf("%w: 文件 %s 已被其它图片引用", ErrInvalidInput, name)
		}
	}
	return nil
}

// storeOptimized 按 "写新文件 → 写描述符 → 删除原上传文件" 的顺序落盘，
// 任何一步崩溃都不会让描述符指向不存在的文件。
func (c *Coordinator) storeOptimized(ctx context.Context, image *models.Image, sourcePath, baseName string, inStore bool, res *optimizer.Result) (*models.Image, error) {
	log := logger.FromContext(ctx)
	name := optimizer.OptimizedName(baseName)

	if err := c.assets.WriteFile(name, res.Data); err != nil {
		return nil, fmt.Errorf("%w: 写入压缩文件失败: %v", ErrStorage, err)
	}

	describeOptimized(image, c.publicPrefix, name, res)
	if err := c.images.Create(ctx, image); err != nil {
		// 源文件本身就是 .webp 时 name 与源文件同名，此时文件仍归调用方处理
		if !(inStore && name == baseName) {
			c.assets.DeleteFile(name)
		}
		return nil, fmt.Errorf("%w: 保存图片记录失败: %v", ErrStorage, err)
	}

	switch {
	case inStore && name == baseName:
		// 新文件已经原子地替换了源文件
	case inStore:
		if err := c.assets.DeleteFile(baseName); err != nil {
			log.Warn("删除原上传文件失败", "file", baseName, "error", err)
		}
	default:
		if err := os.Remove(sourcePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("删除原上传文件失败", "file", sourcePath, "error", err)
		}
	}

	log.Info("图片已压缩入库", "file", name, "category", image.Category, "size", image.FileSize,
		"width", image.Width, "height", image.Height)
	return image, nil
}

// storeOriginal 是转码失败时的兜底：保留原文件，保证上传的图片仍然可以访问。
func (c *Coordinator) storeOriginal(ctx context.Context, image *models.Image, sourcePath, baseName string, inStore bool) (*models.Image, error) {
	log := logger.FromContext(ctx)

	if !inStore {
		if err := c.assets.Import(sourcePath, baseName); err != nil {
			return nil, fmt.Errorf("%w: 保存原文件失败: %v", ErrStorage, err)
		}
	}
	data, err := c.assets.ReadFile(baseName)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取原文件失败: %v", ErrStorage, err)
	}

	describeOriginal(image, c.publicPrefix, baseName, c.assets.Path(baseName), data)
	if err := c.images.Create(ctx, image); err != nil {
		if !inStore {
			c.assets.DeleteFile(baseName)
		}
		return nil, fmt.Errorf("%w: 保存图片记录失败: %v", ErrStorage, err)
	}

	log.Info("图片以原格式入库", "file", baseName, "category", image.Category, "size", image.FileSize)
	return image, nil
}
