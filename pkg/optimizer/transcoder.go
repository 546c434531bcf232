package optimizer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/webp"

	"thiepcuoi/internal/models"
)

const (
	// Quality 和 Method 是固定的编码参数，调用方不可配置。
	Quality = 85
	Method  = 4
)

// Result 是一次成功转码的输出。
type Result struct {
	Data   []byte
	Width  int
	Height int
	// Image 是编码前的像素数据，供计算哈希和占位图复用，避免再次解码。
	Image image.Image
}

// Size 只用于展示，不作为拒绝条件。
func (r *Result) Size() int64 {
	return int64(len(r.Data))
}

// TranscodeError 表示解码、缩放或编码过程中的失败。
type TranscodeError struct {
	Path string
	Op   string
	Err  error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("转码失败 (%s) %s: %v", e.Op, e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Optimize 读取 sourcePath，按 EXIF 方向旋转像素，缩放到分类的尺寸上限以内，
// 然后编码为有损 WebP。输出不包含任何方向元数据。
// 该函数不写任何文件，写入由调用方负责。
func Optimize(sourcePath string, category models.Category) (*Result, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, &TranscodeError{Path: sourcePath, Op: "open", Err: err}
	}
	defer f.Close()

	// AutoOrientation 会把方向标签应用到像素上，解码结果本身不再携带方向信息。
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &TranscodeError{Path: sourcePath, Op: "decode", Err: err}
	}

	maxWidth, maxHeight := BoundingBox(category)
	fitted := fitInside(img, maxWidth, maxHeight)

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, fitted, webp.Options{Quality: Quality, Method: Method}); err != nil {
		return nil, &TranscodeError{Path: sourcePath, Op: "encode", Err: err}
	}

	b := fitted.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  fitted,
	}, nil
}

// fitInside 等比缩小图片使宽高都不超过上限，已经在范围内的图片原样返回。
func fitInside(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth && b.Dy() <= maxHeight {
		return img
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
}
