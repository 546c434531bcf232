package local

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"thiepcuoi/pkg/storage"
)

// tempPrefix 标记正在写入的临时文件，List 会忽略它们。
const tempPrefix = ".tmp-"

// Store 是基于本地目录的 storage.AssetStore 实现。
type Store struct {
	dir string
}

var _ storage.AssetStore = (*Store)(nil)

// NewStore 创建存储并确保目录存在。
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("无法获取上传目录绝对路径 '%s': %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("无法创建上传目录 %s: %w", abs, err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, tempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // 重命名成功后这里是空操作

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		return fmt.Errorf("重命名文件 %s 失败: %w", name, err)
	}
	return nil
}

func (s *Store) ReadFile(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path(name))
}

func (s *Store) DeleteFile(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("删除文件 %s 失败: %w", name, err)
	}
	return nil
}

func (s *Store) StatFile(name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s 不是普通文件", name)
	}
	return info.Size(), nil
}

func (s *Store) Exists(name string) bool {
	_, err := s.StatFile(name)
	return err == nil
}

func (s *Store) Contains(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if filepath.Dir(abs) != s.dir {
		return "", false
	}
	return filepath.Base(abs), true
}

func (s *Store) Import(srcPath, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	dst := s.Path(name)
	if abs, err := filepath.Abs(srcPath); err == nil && abs == dst {
		return nil
	}
	if err := os.Rename(srcPath, dst); err == nil {
		return nil
	}
	// 跨设备时 rename 失败，退回到复制后删除
	if err := s.copyIn(srcPath, name); err != nil {
		return err
	}
	return os.Remove(srcPath)
}

func (s *Store) copyIn(srcPath, name string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("打开源文件失败: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("读取源文件失败: %w", err)
	}
	return s.WriteFile(name, data)
}

func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("无法读取上传目录 %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tempPrefix) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return nil
}
