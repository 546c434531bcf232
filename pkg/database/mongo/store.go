package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"thiepcuoi/config"
	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/database"
)

// Store 是 database.Store 接口的 MongoDB 实现。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	images *imageStore
}

// 编译时检查
var _ database.Store = (*Store)(nil)

// imageStore 封装了与 "images" 集合相关的所有操作。
type imageStore struct {
	coll *mongo.Collection
}

// NewStore 建立与 MongoDB 的连接并返回 Store。
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	slog.Info("正在连接到 MongoDB...", "uri", cfg.URI)
	clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(clientCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(clientCtx, nil); err != nil {
		return nil, err
	}
	slog.Info("MongoDB 连接成功", "database", cfg.Name)

	db := client.Database(cfg.Name)
	return &Store{
		client: client,
		db:     db,
		images: &imageStore{coll: db.Collection("images")},
	}, nil
}

func (s *Store) Images() database.ImageStore {
	return s.images
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	slog.Info("正在确保数据库索引存在...")
	imageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "filename", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_filename_unique"),
		},
		{
			Keys:    bson.D{{Key: "weddingId", Value: 1}, {Key: "category", Value: 1}, {Key: "order", Value: 1}},
			Options: options.Index().SetName("idx_wedding_category_order"),
		},
		{
			Keys:    bson.D{{Key: "weddingId", Value: 1}, {Key: "perceptualHash", Value: 1}},
			Options: options.Index().SetName("idx_wedding_phash"),
		},
	}
	if _, err := s.images.coll.Indexes().CreateMany(ctx, imageIndexes); err != nil {
		slog.Error("为 images 集合创建索引失败", "error", err)
		return err
	}
	slog.Info("Images 集合索引已验证/创建。")
	return nil
}

// 展示顺序：先按 order 升序，再按创建时间倒序。
var displaySort = bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: -1}}

func (i *imageStore) Create(ctx context.Context, image *models.Image) error {
	if image.ID.IsZero() {
		image.ID = primitive.NewObjectID()
	}
	now := time.Now()
	image.CreatedAt = now
	image.UpdatedAt = now
	_, err := i.coll.InsertOne(ctx, image)
	return err
}

func (i *imageStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Image, error) {
	var image models.Image
	err := i.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&image)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &image, nil
}

func (i *imageStore) ListByWedding(ctx context.Context, weddingID primitive.ObjectID) ([]models.Image, error) {
	return i.find(ctx, bson.M{"weddingId": weddingID}, options.Find().SetSort(displaySort))
}

func (i *imageStore) ListByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) ([]models.Image, error) {
	filter := bson.M{"weddingId": weddingID, "category": category}
	return i.find(ctx, filter, options.Find().SetSort(displaySort))
}

func (i *imageStore) GetAll(ctx context.Context) ([]models.Image, error) {
	// 占位图体积不小，批量处理用不到，这里不取
	opts := options.Find().SetProjection(bson.M{"placeholder": 0})
	return i.find(ctx, bson.D{}, opts)
}

func (i *imageStore) FindByPerceptualHash(ctx context.Context, weddingID primitive.ObjectID, pHash string) ([]models.Image, error) {
	filter := bson.M{"weddingId": weddingID, "perceptualHash": pHash}
	return i.find(ctx, filter, options.Find().SetSort(displaySort).SetLimit(50))
}

func (i *imageStore) FileNameInUse(ctx context.Context, fileName string) (bool, error) {
	n, err := i.coll.CountDocuments(ctx, bson.M{"filename": fileName}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *imageStore) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Image, error) {
	cursor, err := i.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	images := []models.Image{}
	if err = cursor.All(ctx, &images); err != nil {
		return nil, err
	}
	return images, nil
}

func (i *imageStore) UpdateFile(ctx context.Context, image *models.Image) error {
	image.UpdatedAt = time.Now()
	update := bson.M{"$set": bson.M{
		"filename":       image.FileName,
		"path":           image.Path,
		"fileSize":       image.FileSize,
		"width":          image.Width,
		"height":         image.Height,
		"fileHash":       image.FileHash,
		"perceptualHash": image.PerceptualHash,
		"placeholder":    image.Placeholder,
		"updatedAt":      image.UpdatedAt,
	}}
	res, err := i.coll.UpdateOne(ctx, bson.M{"_id": image.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("更新文件信息失败 %s: %w", image.ID.Hex(), database.ErrNotFound)
	}
	return nil
}

func (i *imageStore) UpdateOrder(ctx context.Context, id primitive.ObjectID, order int) (*models.Image, error) {
	update := bson.M{"$set": bson.M{"order": order, "updatedAt": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var image models.Image
	err := i.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&image)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &image, nil
}

func (i *imageStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := i.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (i *imageStore) DeleteByWeddingAndCategory(ctx context.Context, weddingID primitive.ObjectID, category models.Category) (int64, error) {
	res, err := i.coll.DeleteMany(ctx, bson.M{"weddingId": weddingID, "category": category})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
