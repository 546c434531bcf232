package storage

import "errors"

// ErrInvalidName 表示文件名包含路径分隔符或其它不允许的内容。
var ErrInvalidName = errors.New("无效的资源文件名")

// AssetStore 是上传目录的抽象。文件名在目录内唯一且不会被复用，
// 因此持有某个文件名的调用方可以直接读写它，不需要目录级别的锁。
type AssetStore interface {
	// WriteFile 原子地写入文件：先写临时文件再重命名，读者不会看到写了一半的内容。
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	// DeleteFile 删除文件，文件不存在时不返回错误。
	DeleteFile(name string) error
	// StatFile 返回文件大小。
	StatFile(name string) (int64, error)
	Exists(name string) bool
	// Import 把外部路径上的文件移入存储并命名为 name。
	Import(srcPath, name string) error
	// Contains 报告 path 是否直接位于存储目录中，是则返回它的文件名。
	Contains(path string) (name string, ok bool)
	// List 返回存储中的所有文件名（不含临时文件）。
	List() ([]string, error)
	Path(name string) string
}
