package pipeline_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/database"
	"thiepcuoi/pkg/database/memory"
	"thiepcuoi/pkg/pipeline"
	"thiepcuoi/pkg/storage/local"
)

const prefix = "/uploads"

type fixture struct {
	images      database.ImageStore
	assets      *local.Store
	coordinator *pipeline.Coordinator
	reoptimizer *pipeline.Reoptimizer
	wedding     primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	assets, err := local.NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	images := memory.NewStore().Images()
	return &fixture{
		images:      images,
		assets:      assets,
		coordinator: pipeline.NewCoordinator(images, assets, prefix),
		reoptimizer: pipeline.NewReoptimizer(images, assets, prefix, 2),
		wedding:     primitive.NewObjectID(),
	}
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

// truncatedJPEG 的文件头可以识别为 JPEG，但像素数据不完整，无法解码。
func truncatedJPEG(t *testing.T) []byte {
	t.Helper()
	data := jpegBytes(t, 64, 64)
	return data[:len(data)/3]
}

// put 把文件直接写入上传目录，模拟上传层已经落盘的文件。
func (f *fixture) put(t *testing.T, name string, data []byte) string {
	t.Helper()
	if err := f.assets.WriteFile(name, data); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return f.assets.Path(name)
}

// seed 直接写入一条描述符，用于批量处理测试。
func (f *fixture) seed(t *testing.T, name string, category models.Category) models.Image {
	t.Helper()
	img := &models.Image{
		WeddingID: f.wedding,
		FileName:  name,
		Path:      prefix + "/" + name,
		Category:  category,
	}
	if err := f.images.Create(context.Background(), img); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return *img
}

func (f *fixture) mustRead(t *testing.T, name string) []byte {
	t.Helper()
	data, err := f.assets.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", name, err)
	}
	return data
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
