package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/logger"
	"thiepcuoi/pkg/storage"
)

// SingletonEnforcer 保证 qr-groom / qr-bride 这类分类在每个婚礼下最多只有一张图片。
type SingletonEnforcer struct {
	images DescriptorStore
	assets storage.AssetStore
	locks  slotLocks
}

func NewSingletonEnforcer(images DescriptorStore, assets storage.AssetStore) *SingletonEnforcer {
	return &SingletonEnforcer{
		images: images,
		assets: assets,
		locks:  slotLocks{slots: make(map[string]*slotLock)},
	}
}

// EvictPrior 删除 (weddingID, category) 下已有的所有描述符及其文件。
// 先删描述符再删文件，中途崩溃最多留下无人引用的文件。没有匹配时返回 0。
func (e *SingletonEnforcer) EvictPrior(ctx context.Context, weddingID primitive.ObjectID, category models.Category) (int, error) {
	if !category.IsSingleton() {
		return 0, nil
	}
	log := logger.FromContext(ctx)

	prior, err := e.images.ListByWeddingAndCategory(ctx, weddingID, category)
	if err != nil {
		return 0, fmt.Errorf("查询旧图片失败: %w", err)
	}
	if len(prior) == 0 {
		return 0, nil
	}

	deleted, err := e.images.DeleteByWeddingAndCategory(ctx, weddingID, category)
	if err != nil {
		return 0, fmt.Errorf("删除旧图片记录失败: %w", err)
	}
	for _, img := range prior {
		if err := e.assets.DeleteFile(img.FileName); err != nil {
			log.Warn("删除旧图片文件失败", "file", img.FileName, "error", err)
		}
	}
	log.Info("已删除旧的单例图片", "weddingId", weddingID.Hex(), "category", category, "count", deleted)
	return int(deleted), nil
}

// Lock 串行化同一个单例槽位上的 "删除旧图 → 写入新图"，返回解锁函数。
// 只在当前进程内有效。
func (e *SingletonEnforcer) Lock(weddingID primitive.ObjectID, category models.Category) func() {
	return e.locks.lock(weddingID.Hex() + "/" + string(category))
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

type slotLocks struct {
	mu    sync.Mutex
	slots map[string]*slotLock
}

func (l *slotLocks) lock(key string) func() {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slotLock{}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		l.mu.Lock()
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
		l.mu.Unlock()
	}
}
