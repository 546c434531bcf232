// Package memory 提供进程内的 database.Store 实现，用于本地演示和测试。
// 数据只存在于内存中，进程退出即丢失。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/database"
)

type Store struct {
	images *imageStore
}

var _ database.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{images: &imageStore{docs: make(map[primitive.ObjectID]models.Image)}}
}

func (s *Store) Images() database.ImageStore {
	return s.images
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

type imageStore struct {
	mu   sync.RWMutex
	docs map[primitive.ObjectID]models.Image
}

func (i *imageStore) Create(ctx context.Context, image *models.Image) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, taken := i.ownerOf(image.FileName); taken {
		return fmt.Errorf("文件名重复: %s", image.FileName)
	}
	if image.ID.IsZero() {
		image.ID = primitive.NewObjectID()
	}
	now := time.Now()
	image.CreatedAt = now
	image.UpdatedAt = now
	i.docs[image.ID] = *image
	return nil
}

func (i *imageStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Image, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc, ok := i.docs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &doc, nil
}

func (i *imageStore) ListByWedding(ctx context.Context, weddingID primitive.ObjectID) ([]models.Image, error) {
	return i.filter(func(img models.Image) bool {
		return img.WeddingID == weddingID
	}), nil
}

func (i *imageStore) ListByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) ([]models.Image, error) {
	return i.filter(func(img models.Image) bool {
		return img.WeddingID == weddingID && img.Category == category
	}), nil
}

func (i *imageStore) GetAll(ctx context.Context) ([]models.Image, error) {
	return i.filter(func(models.Image) bool { return true }), nil
}

func (i *imageStore) FindByPerceptualHash(ctx context.Context, weddingID primitive.ObjectID, pHash string) ([]models.Image, error) {
	return i.filter(func(img models.Image) bool {
		return img.WeddingID == weddingID && img.PerceptualHash == pHash
	}), nil
}

func (i *imageStore) FileNameInUse(ctx context.Context, fileName string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	_, taken := i.ownerOf(fileName)
	return taken, nil
}

// ownerOf 返回引用 fileName 的描述符ID，调用方必须持有锁。
func (i *imageStore) ownerOf(fileName string) (primitive.ObjectID, bool) {
	for id, doc := range i.docs {
		if doc.FileName == fileName {
			return id, true
		}
	}
	return primitive.NilObjectID, false
}

// filter 返回按 order 升序、createdAt 降序排列的匹配记录副本。
func (i *imageStore) filter(match func(models.Image) bool) []models.Image {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := []models.Image{}
	for _, doc := range i.docs {
		if match(doc) {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Order != out[b].Order {
			return out[a].Order < out[b].Order
		}
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID.Hex() < out[b].ID.Hex()
	})
	return out
}

func (i *imageStore) UpdateFile(ctx context.Context, image *models.Image) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc, ok := i.docs[image.ID]
	if !ok {
		return fmt.Errorf("更新文件信息失败 %s: %w", image.ID.Hex(), database.ErrNotFound)
	}
	// 与 mongo 的 filename 唯一索引保持一致
	if owner, taken := i.ownerOf(image.FileName); taken && owner != image.ID {
		return fmt.Errorf("文件名重复: %s", image.FileName)
	}
	image.UpdatedAt = time.Now()
	doc.FileName = image.FileName
	doc.Path = image.Path
	doc.FileSize = image.FileSize
	doc.Width = image.Width
	doc.Height = image.Height
	doc.FileHash = image.FileHash
	doc.PerceptualHash = image.PerceptualHash
	doc.Placeholder = image.Placeholder
	doc.UpdatedAt = image.UpdatedAt
	i.docs[image.ID] = doc
	return nil
}

func (i *imageStore) UpdateOrder(ctx context.Context, id primitive.ObjectID, order int) (*models.Image, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc, ok := i.docs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	doc.Order = order
	doc.UpdatedAt = time.Now()
	i.docs[id] = doc
	return &doc, nil
}

func (i *imageStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.docs[id]; !ok {
		return database.ErrNotFound
	}
	delete(i.docs, id)
	return nil
}

func (i *imageStore) DeleteByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var n int64
	for id, doc := range i.docs {
		if doc.WeddingID == weddingID && doc.Category == category {
			delete(i.docs, id)
			n++
		}
	}
	return n, nil
}
