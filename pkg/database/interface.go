package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
)

// ErrNotFound 表示按 ID 查找或更新时记录不存在。
var ErrNotFound = errors.New("记录不存在")

// Store 是顶层接口，组合了所有数据模型的存储接口。
type Store interface {
	Images() ImageStore
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// ImageStore 定义了所有与图片描述符相关的数据库操作。
// 单条记录的写入是原子的，跨记录没有事务保证。
type ImageStore interface {
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Image, error)
	// ListByWedding 按 order 升序、createdAt 降序返回婚礼下的全部图片。
	ListByWedding(ctx context.Context, weddingID primitive.ObjectID) ([]models.Image, error)
	ListByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) ([]models.Image, error)
	// GetAll 返回全部描述符，供批量重新压缩和一致性检查使用。
	GetAll(ctx context.Context) ([]models.Image, error)
	// UpdateFile 更新与文件相关的字段（文件名、路径、大小、尺寸、哈希、占位图）。
	UpdateFile(ctx context.Context, image *models.Image) error
	UpdateOrder(ctx context.Context, id primitive.ObjectID, order int) (*models.Image, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) (int64, error)
	FindByPerceptualHash(ctx context.Context, weddingID primitive.ObjectID, pHash string) ([]models.Image, error)
	// FileNameInUse 报告是否已有描述符引用该文件名。
	FileNameInUse(ctx context.Context, fileName string) (bool, error)
}
