package optimizer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extension 是压缩格式的规范扩展名。
const Extension = ".webp"

// IsOptimized 报告文件名是否已经是压缩格式，已压缩的描述符在批量处理中被跳过。
func IsOptimized(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// OptimizedName 把文件名的最后一个扩展名替换为 .webp，基础名保持不变。
// 同一个输入总是得到同一个输出。
func OptimizedName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + Extension
}

// NewStoredName 生成上传目录中的唯一文件名：毫秒时间戳 + 随机段 + 扩展名。
func NewStoredName(ext string) string {
	random := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), random, strings.ToLower(ext))
}
