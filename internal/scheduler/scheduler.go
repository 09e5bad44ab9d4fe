package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Task 定时任务
type Task struct {
	Name        string
	Description string
	Schedule    string // Cron 表达式，支持 @every 描述符
	Enabled     bool
	Timeout     time.Duration // 单次执行超时，0 表示不限
	Handler     func(ctx context.Context) error
}

// Service gocron 调度器封装，按名称管理任务
type Service struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logrus.Logger

	mu    sync.RWMutex
	tasks map[string]Task
}

func NewService(logger *logrus.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	// 上一次还没跑完时跳过本次触发，避免同一任务并发执行
	s.SingletonModeAll()
	return &Service{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		tasks:     make(map[string]Task),
	}
}

// Start 异步启动
func (s *Service) Start() {
	s.logger.WithField("tasks", len(s.ListTasks())).Info("启动定时任务调度")
	s.scheduler.StartAsync()
}

// Stop 停止调度并取消正在执行任务的 ctx
func (s *Service) Stop() {
	s.logger.Info("停止定时任务调度")
	s.scheduler.Stop()
	s.cancel()
}

// RegisterTasks 注册一组任务，禁用的任务跳过
func (s *Service) RegisterTasks(tasks []Task) error {
	for _, task := range tasks {
		if !task.Enabled {
			s.logger.WithField("task", task.Name).Info("任务未启用，跳过")
			continue
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}
	return nil
}

// AddTask 动态添加任务
func (s *Service) AddTask(task Task) error {
	if task.Handler == nil {
		return fmt.Errorf("task %s has no handler", task.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task with name '%s' already exists", task.Name)
	}

	job, err := s.scheduler.Cron(task.Schedule).Do(func() {
		_ = s.run(task)
	})
	if err != nil {
		return fmt.Errorf("schedule task %s (%q): %w", task.Name, task.Schedule, err)
	}
	job.Tag(task.Name)
	s.tasks[task.Name] = task

	s.logger.WithFields(logrus.Fields{"task": task.Name, "schedule": task.Schedule}).Info("注册定时任务")
	return nil
}

// GetTaskByName 按名称查询
func (s *Service) GetTaskByName(name string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[name]
	return task, ok
}

// ListTasks 按名称排序
func (s *Service) ListTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunTaskNow 立即执行一次（同步）
func (s *Service) RunTaskNow(name string) error {
	task, ok := s.GetTaskByName(name)
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	return s.run(task)
}

func (s *Service) run(task Task) error {
	ctx := s.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	log := s.logger.WithField("task", task.Name)
	log.WithField("description", task.Description).Info("开始执行定时任务")
	start := time.Now()
	err := task.Handler(ctx)
	log = log.WithField("elapsed_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).Error("定时任务执行失败")
		return err
	}
	log.Info("定时任务执行完成")
	return nil
}
