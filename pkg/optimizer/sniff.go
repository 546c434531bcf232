package optimizer

import (
	"errors"
	"image"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedFormat 表示文件内容不是受支持的图片格式。
var ErrUnsupportedFormat = errors.New("不支持的图片格式")

var supportedMIME = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ExtensionFor 返回 DetectFormat 结果对应的扩展名，未知类型返回空字符串。
func ExtensionFor(mime string) string {
	return mimeExtensions[mime]
}

// DetectFormat 根据文件头（而不是扩展名）判断图片格式，返回 MIME 类型。
func DetectFormat(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	for _, m := range supportedMIME {
		if mtype.Is(m) {
			return m, nil
		}
	}
	return "", ErrUnsupportedFormat
}

// Dimensions 只读取图片头部获取宽高，不解码像素。
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
