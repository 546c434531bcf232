package maintenance

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/hasher"
	"thiepcuoi/pkg/storage"
)

// Maintenance 定义了维护工具的接口
type Maintenance interface {
	GenerateFileManifest(ctx context.Context, libraryPath, outputPath string) (string, error)
	BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error)
	Audit(images []models.Image, assets storage.AssetStore) (*AuditReport, error)
	Close()
}

// AuditReport 列出描述符与上传目录之间的不一致。
type AuditReport struct {
	// Missing 是文件已不存在的描述符，按文件名排序。
	Missing []MissingAsset `json:"missing"`
	// Orphans 是没有任何描述符引用的文件，通常由中途崩溃或删除失败留下，可以安全清理。
	Orphans []string `json:"orphans"`
}

type MissingAsset struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
}

type defaultMaintenance struct {
	logger     *log.Logger
	logFile    *os.File
	numWorkers int
}

// NewMaintenance 创建维护模块，日志写入 logDir/maintenance.log
func NewMaintenance(logDir string, workerCount int) (Maintenance, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("无法创建日志目录: %w", err)
	}
	logFilePath := filepath.Join(logDir, "maintenance.log")
	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("无法初始化维护模块日志: %w", err)
	}
	logger := log.New(file, "MAINTENANCE: ", log.LstdFlags|log.Lshortfile)
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &defaultMaintenance{
		logger:     logger,
		logFile:    file,
		numWorkers: workerCount,
	}, nil
}

func (m *defaultMaintenance) Close() {
	if m.logFile != nil {
		m.logFile.Close()
	}
}

// GenerateFileManifest 并发计算上传目录中每个文件的 SHA-256，
// 以 sha256sum 兼容的格式写入 outputPath，返回清单文件路径。
func (m *defaultMaintenance) GenerateFileManifest(ctx context.Context, libraryPath, outputPath string) (string, error) {
	m.logger.Println("--- 开始生成文件清单 ---")

	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return "", fmt.Errorf("无法创建清单目录: %w", err)
	}
	manifestPath := filepath.Join(outputPath, fmt.Sprintf("manifest_%s.txt", time.Now().Format("2006-01-02_150405")))

	var paths []string
	err := filepath.WalkDir(libraryPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("扫描上传目录失败: %w", err)
	}

	var wg sync.WaitGroup
	tasks := make(chan string, m.numWorkers)
	results := make(chan string, m.numWorkers)

	for i := 0; i < m.numWorkers; i++ {
		wg.Add(1)
		go m.manifestWorker(&wg, libraryPath, tasks, results)
	}

	go func() {
		defer close(tasks)
		for _, p := range paths {
			select {
			case <-ctx.Done():
				return
			case tasks <- p:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var lines []string
	for line := range results {
		lines = append(lines, line)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 排序后输出，方便对比两次清单
	sort.Slice(lines, func(a, b int) bool { return lines[a][65:] < lines[b][65:] })

	file, err := os.Create(manifestPath)
	if err != nil {
		return "", fmt.Errorf("无法创建清单文件: %w", err)
	}
	defer file.Close()
	for _, line := range lines {
		if _, err := file.WriteString(line); err != nil {
			return "", fmt.Errorf("写入清单文件失败: %w", err)
		}
	}

	m.logger.Printf("--- 文件清单生成完毕: %s (%d 个文件) ---", manifestPath, len(lines))
	return manifestPath, nil
}

// manifestWorker 计算哈希并格式化为 "<sha256> *<相对路径>"
func (m *defaultMaintenance) manifestWorker(wg *sync.WaitGroup, root string, tasks <-chan string, results chan<- string) {
	defer wg.Done()
	for path := range tasks {
		hash, err := hasher.FileDigest(path)
		if err != nil {
			m.logger.Printf("警告: 计算文件 %s 的哈希失败: %v", path, err)
			continue
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = filepath.Base(path)
		}
		results <- fmt.Sprintf("%s *%s\n", hash, filepath.ToSlash(relPath))
	}
}

// BackupDatabase 调用 mongodump 备份数据库，返回备份文件路径。
func (m *defaultMaintenance) BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error) {
	m.logger.Println("--- 开始执行数据库备份 ---")

	if _, err := exec.LookPath("mongodump"); err != nil {
		m.logger.Println("致命错误: 在系统 PATH 中找不到 'mongodump' 命令。")
		return "", fmt.Errorf("'mongodump' command not found in PATH")
	}
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return "", fmt.Errorf("无法创建备份目录: %w", err)
	}

	archiveFile := filepath.Join(outputPath, fmt.Sprintf("db_backup_%s.gz", time.Now().Format("2006-01-02_150405")))
	m.logger.Printf("数据库备份文件将被保存到: %s", archiveFile)

	cmd := exec.CommandContext(ctx, "mongodump",
		"--uri", dbURI,
		"--db", dbName,
		"--archive="+archiveFile,
		"--gzip",
	)
	cmd.Stdout = m.logger.Writer()
	cmd.Stderr = m.logger.Writer()

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("执行 mongodump 失败: %w", err)
	}

	m.logger.Println("--- 数据库备份成功 ---")
	return archiveFile, nil
}

// Audit 对比描述符和上传目录，找出文件丢失的描述符和无人引用的文件。
// 只报告，不做任何修改。
func (m *defaultMaintenance) Audit(images []models.Image, assets storage.AssetStore) (*AuditReport, error) {
	files, err := assets.List()
	if err != nil {
		return nil, err
	}
	onDisk := make(map[string]struct{}, len(files))
	for _, name := range files {
		onDisk[name] = struct{}{}
	}

	report := &AuditReport{Missing: []MissingAsset{}, Orphans: []string{}}
	referenced := make(map[string]struct{}, len(images))
	for _, img := range images {
		referenced[img.FileName] = struct{}{}
		if _, ok := onDisk[img.FileName]; !ok {
			report.Missing = append(report.Missing, MissingAsset{ID: img.ID.Hex(), FileName: img.FileName})
		}
	}
	for _, name := range files {
		if _, ok := referenced[name]; !ok {
			report.Orphans = append(report.Orphans, name)
		}
	}

	sort.Slice(report.Missing, func(a, b int) bool { return report.Missing[a].FileName < report.Missing[b].FileName })
	sort.Strings(report.Orphans)

	m.logger.Printf("一致性检查完成: %d 条记录, %d 个文件, 丢失 %d, 孤立 %d",
		len(images), len(files), len(report.Missing), len(report.Orphans))
	return report, nil
}
