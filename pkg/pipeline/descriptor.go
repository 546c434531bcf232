package pipeline

import (
	"context"
	"path"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/hasher"
	"thiepcuoi/pkg/optimizer"
	"thiepcuoi/pkg/thumbnailer"
)

// DescriptorStore 是流水线对描述符库的全部依赖，database.ImageStore 满足该接口。
type DescriptorStore interface {
	Create(ctx context.Context, image *models.Image) error
	ListByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) ([]models.Image, error)
	UpdateFile(ctx context.Context, image *models.Image) error
	DeleteByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) (int64, error)
	FileNameInUse(ctx context.Context, fileName string) (bool, error)
}

func publicPath(prefix, name string) string {
	return path.Join("/", prefix, name)
}

// describeOptimized 用转码结果填充描述符的文件字段。
func describeOptimized(img *models.Image, prefix, name string, res *optimizer.Result) {
	img.FileName = name
	img.Path = publicPath(prefix, name)
	img.FileSize = res.Size()
	img.Width = res.Width
	img.Height = res.Height
	img.FileHash = hasher.Digest(res.Data)
	img.PerceptualHash = hasher.Perceptual(res.Image)
	if placeholder, err := thumbnailer.Placeholder(res.Image); err == nil {
		img.Placeholder = placeholder
	}
}

// describeOriginal 用未经处理的原文件填充描述符。像素无法解码，所以没有感知哈希和占位图。
func describeOriginal(img *models.Image, prefix, name, filePath string, data []byte) {
	img.FileName = name
	img.Path = publicPath(prefix, name)
	img.FileSize = int64(len(data))
	img.FileHash = hasher.Digest(data)
	if w, h, err := optimizer.Dimensions(filePath); err == nil {
		img.Width, img.Height = w, h
	}
}
