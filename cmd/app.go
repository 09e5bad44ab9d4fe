package main

import (
	"fmt"

	"MeetingSync/internal/adapter"
	"MeetingSync/internal/api"
	"MeetingSync/internal/calendar/google"
	"MeetingSync/internal/config"
	"MeetingSync/internal/repository"
	"MeetingSync/internal/scheduler"
	"MeetingSync/internal/service"
	"MeetingSync/internal/utils/httpclient"

	// 注册目录适配器
	_ "MeetingSync/internal/adapter/directorya"
	_ "MeetingSync/internal/adapter/directoryb"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app 进程内全部组件
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *gorm.DB

	users     repository.UserRepository
	meetings  repository.MeetingRepository
	externals repository.ExternalMeetingRepository
	runs      repository.SyncRunRepository
	notes     repository.NotificationRepository

	sync   *service.SyncService
	creds  *service.CredentialManager
	push   *service.CalendarPushService
	feeds  *service.FeedService
	auth   *api.Authenticator
	sched  *scheduler.Service
	source *adapter.SourceRegistry
}

func newApp(configPath string, logger *logrus.Logger) (*app, error) {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("配置文件加载成功")

	// 2. 数据库连接（库不存在则先创建再连），并迁移表结构
	db, err := repository.OpenDatabase(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		users:     repository.NewUserRepository(db),
		meetings:  repository.NewMeetingRepository(db),
		externals: repository.NewExternalMeetingRepository(db, cfg.Sync.BatchLimit),
		runs:      repository.NewSyncRunRepository(db),
		notes:     repository.NewNotificationRepository(db),
	}

	// 3. 目录源与同步
	a.source = adapter.NewSourceRegistry(cfg, logger)
	a.sync = service.NewSyncService(a.source.Adapters(), a.externals, a.runs, a.notes, cfg.Sync.AlertRoles, logger)

	// 4. 凭据与日历推送
	provider := google.NewProvider(logger)
	apiClient := httpclient.NewAPIClient(cfg.Calendar.Timeout, logger)
	a.creds = service.NewCredentialManager(a.users, provider, &cfg.OAuth, apiClient, logger)
	a.push = service.NewCalendarPushService(a.creds, provider, a.meetings, a.externals, a.users, &cfg.Calendar, logger)
	a.feeds = service.NewFeedService(a.meetings, a.externals, a.users, &cfg.Calendar)
	a.auth = api.NewAuthenticator(&cfg.Auth, a.users, logger)

	// 5. 定时任务
	a.sched = scheduler.NewService(logger)
	if err := a.sched.RegisterTasks(scheduler.MeetingSyncTasks(&cfg.Sync, a.sync, a.push)); err != nil {
		return nil, fmt.Errorf("注册定时任务失败: %w", err)
	}
	return a, nil
}

func (a *app) handlers() *api.Handlers {
	return &api.Handlers{
		Auth:     a.auth,
		Sync:     api.NewSyncHandler(a.sync, a.runs, a.notes, a.logger),
		Calendar: api.NewCalendarHandler(a.creds, a.auth, a.push, a.feeds, a.logger),
		Meetings: api.NewMeetingHandler(a.push, a.logger),
	}
}

func (a *app) close() {
	a.sched.Stop()
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.WithError(err).Warn("关闭数据库连接失败")
		}
	}
}
