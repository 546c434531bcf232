package thumbnailer

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// PlaceholderSize 是占位图长边的像素数。
const PlaceholderSize = 32

// Placeholder 生成一张长边不超过 PlaceholderSize 的低质量 JPEG，并编码为 data URI。
// 前端把它拉伸模糊后作为大图加载前的预览。
func Placeholder(src image.Image) (string, error) {
	small := imaging.Fit(src, PlaceholderSize, PlaceholderSize, imaging.Box)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, small, &jpeg.Options{Quality: 50}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
