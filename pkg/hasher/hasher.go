package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/ajdnik/imghash"
)

// Digest 计算字节内容的 SHA-256，用于描述符的 fileHash 字段。
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest 流式计算文件的 SHA-256，适合清单生成这类不需要读入内存的场景。
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Perceptual 计算已解码图片的感知哈希（pHash），视觉相同的照片得到相同的值。
func Perceptual(img image.Image) string {
	phasher := imghash.NewPHash()
	return fmt.Sprintf("%d", phasher.Calculate(img))
}
