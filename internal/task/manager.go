package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/pipeline"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

// maxFinishedTasks 是保留的已结束任务数量，更早的任务在启动新任务时被清理。
const maxFinishedTasks = 10

// Task 代表一次后台批量重新压缩。
type Task struct {
	ID        string            `json:"id"`
	Status    TaskStatus        `json:"status"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   *time.Time        `json:"endTime,omitempty"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`

	cancel context.CancelFunc
}

// Source 提供需要重新压缩的描述符快照。
type Source interface {
	GetAll(ctx context.Context) ([]models.Image, error)
}

// Reoptimizer 是任务管理器对批量处理器的依赖，*pipeline.Reoptimizer 满足该接口。
type Reoptimizer interface {
	ReoptimizeWithProgress(ctx context.Context, images []models.Image, onProgress func(done, total int)) pipeline.Summary
}

// Manager 是任务管理器，同一时间只允许一个任务运行。
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex

	source      Source
	reoptimizer Reoptimizer
	baseCtx     context.Context
}

// NewManager 创建任务管理器。baseCtx 取消时所有运行中的任务都会在当前图片处理完后停止。
func NewManager(baseCtx context.Context, source Source, r Reoptimizer) *Manager {
	return &Manager{
		tasks:       make(map[string]*Task),
		source:      source,
		reoptimizer: r,
		baseCtx:     baseCtx,
	}
}

// StartOptimizeTask 创建一个批量重新压缩任务，并立即在后台启动它。
func (m *Manager) StartOptimizeTask() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.tasks {
		if task.Status == StatusRunning || task.Status == StatusPending {
			return "", fmt.Errorf("另一个任务正在进行中 (ID: %s)，请等待其完成后再试", task.ID)
		}
	}

	m.pruneFinishedLocked()

	ctx, cancel := context.WithCancel(m.baseCtx)
	newTask := &Task{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		StartTime: time.Now(),
		cancel:    cancel,
	}
	m.tasks[newTask.ID] = newTask

	go m.runOptimize(ctx, newTask)

	return newTask.ID, nil
}

// GetTaskStatus 返回任务当前状态的副本。
func (m *Manager) GetTaskStatus(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("找不到任务ID: %s", taskID)
	}
	snapshot := *task
	return &snapshot, nil
}

// CancelTask 请求停止任务。正在处理的图片会完整结束，之后不再开始新的图片。
func (m *Manager) CancelTask(taskID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return fmt.Errorf("找不到任务ID: %s", taskID)
	}
	task.cancel()
	return nil
}

// pruneFinishedLocked 只保留最近结束的 maxFinishedTasks 个任务，调用方必须持有写锁。
func (m *Manager) pruneFinishedLocked() {
	var finished []*Task
	for _, task := range m.tasks {
		if task.EndTime != nil {
			finished = append(finished, task)
		}
	}
	if len(finished) <= maxFinishedTasks {
		return
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].EndTime.After(*finished[b].EndTime)
	})
	for _, task := range finished[maxFinishedTasks:] {
		delete(m.tasks, task.ID)
	}
}

func (m *Manager) runOptimize(ctx context.Context, task *Task) {
	defer task.cancel()

	m.mu.Lock()
	task.Status = StatusRunning
	m.mu.Unlock()
	slog.Info("任务启动", "taskId", task.ID)

	images, err := m.source.GetAll(ctx)
	if err != nil {
		m.finish(task, StatusFailed, nil, err)
		return
	}

	progress := func(done, total int) {
		m.mu.Lock()
		if total > 0 {
			task.Progress = float64(done) / float64(total) * 100
		}
		m.mu.Unlock()
	}
	summary := m.reoptimizer.ReoptimizeWithProgress(ctx, images, progress)

	status := StatusCompleted
	if summary.Interrupted {
		status = StatusCancelled
	}
	m.finish(task, status, &summary, nil)
}

func (m *Manager) finish(task *Task, status TaskStatus, summary *pipeline.Summary, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task.Status = status
	task.Summary = summary
	if status == StatusCompleted {
		task.Progress = 100
	}
	if err != nil {
		task.Error = err.Error()
	}
	endTime := time.Now()
	task.EndTime = &endTime
	slog.Info("任务结束", "taskId", task.ID, "status", status, "error", task.Error)
}
