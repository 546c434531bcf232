package optimizer_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/optimizer"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

// withOrientation 在 SOI 之后插入只包含方向标签的 APP1 Exif 段。
func withOrientation(jpg []byte, orientation uint16) []byte {
	tiff := []byte{
		'M', 'M', 0x00, 0x2a, 0x00, 0x00, 0x00, 0x08, // 大端头，IFD0 偏移 8
		0x00, 0x01, // 1 个条目
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, byte(orientation >> 8), byte(orientation), 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // 没有下一个 IFD
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	segLen := len(payload) + 2

	out := make([]byte, 0, len(jpg)+segLen+2)
	out = append(out, jpg[:2]...)
	out = append(out, 0xFF, 0xE1, byte(segLen>>8), byte(segLen))
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

func decodeWebP(t *testing.T, data []byte) image.Image {
	t.Helper()
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		t.Fatalf("输出不是 WebP 容器")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image.Decode: %v", err)
	}
	if format != "webp" {
		t.Fatalf("format = %q, want webp", format)
	}
	return img
}

func TestOptimize_FitsBoundingBox(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "wide.jpg", encodeJPEG(t, solid(1600, 400, color.RGBA{200, 100, 50, 255})))

	res, err := optimizer.Optimize(src, models.CategoryQRGroom)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Width != 800 || res.Height != 200 {
		t.Fatalf("尺寸 = %dx%d, want 800x200", res.Width, res.Height)
	}
	b := decodeWebP(t, res.Data).Bounds()
	if b.Dx() != res.Width || b.Dy() != res.Height {
		t.Fatalf("解码尺寸 %dx%d 与结果 %dx%d 不一致", b.Dx(), b.Dy(), res.Width, res.Height)
	}
	if res.Size() != int64(len(res.Data)) {
		t.Fatalf("Size() = %d, want %d", res.Size(), len(res.Data))
	}
}

func TestOptimize_TallImageLimitedByHeight(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(600, 2400, color.White)); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	src := writeFile(t, dir, "tall.png", buf.Bytes())

	res, err := optimizer.Optimize(src, models.CategoryGroom)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Width != 300 || res.Height != 1200 {
		t.Fatalf("尺寸 = %dx%d, want 300x1200", res.Width, res.Height)
	}
}

func TestOptimize_NeverUpscales(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "small.jpg", encodeJPEG(t, solid(300, 200, color.Black)))

	res, err := optimizer.Optimize(src, models.CategoryStory)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Width != 300 || res.Height != 200 {
		t.Fatalf("尺寸 = %dx%d, want 300x200", res.Width, res.Height)
	}
}

func TestOptimize_AppliesOrientation(t *testing.T) {
	// 左半红、右半蓝；方向 6 需要顺时针旋转 90 度显示，红色应该出现在上半部分
	src := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 80; x++ {
			if x < 40 {
				src.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				src.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	dir := t.TempDir()
	path := writeFile(t, dir, "rotated.jpg", withOrientation(encodeJPEG(t, src), 6))

	res, err := optimizer.Optimize(path, models.CategoryAlbum)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Width != 40 || res.Height != 80 {
		t.Fatalf("尺寸 = %dx%d, want 40x80", res.Width, res.Height)
	}
	if bytes.Contains(res.Data, []byte("EXIF")) || bytes.Contains(res.Data, []byte("Exif")) {
		t.Fatalf("输出不应包含 EXIF 元数据")
	}

	out := decodeWebP(t, res.Data)
	top := color.RGBAModel.Convert(out.At(20, 15)).(color.RGBA)
	bottom := color.RGBAModel.Convert(out.At(20, 65)).(color.RGBA)
	if top.R < top.B {
		t.Fatalf("上半部分应为红色, got %+v", top)
	}
	if bottom.B < bottom.R {
		t.Fatalf("下半部分应为蓝色, got %+v", bottom)
	}
}

func TestOptimize_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	jpg := encodeJPEG(t, solid(200, 200, color.White))
	src := writeFile(t, dir, "broken.jpg", jpg[:len(jpg)/3])

	_, err := optimizer.Optimize(src, models.CategoryAlbum)
	var terr *optimizer.TranscodeError
	if !errors.As(err, &terr) {
		t.Fatalf("Optimize error = %v, want *TranscodeError", err)
	}
	if terr.Path != src {
		t.Fatalf("TranscodeError.Path = %q, want %q", terr.Path, src)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Optimize 不应该写文件, 目录中有 %d 个文件", len(entries))
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	jpg := writeFile(t, dir, "photo.png", encodeJPEG(t, solid(10, 10, color.White)))
	txt := writeFile(t, dir, "note.jpg", []byte("not an image at all"))

	mime, err := optimizer.DetectFormat(jpg)
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	if mime != "image/jpeg" {
		t.Fatalf("DetectFormat = %q, want image/jpeg (按内容而不是扩展名)", mime)
	}

	if _, err := optimizer.DetectFormat(txt); !errors.Is(err, optimizer.ErrUnsupportedFormat) {
		t.Fatalf("DetectFormat(text) error = %v, want ErrUnsupportedFormat", err)
	}
}
