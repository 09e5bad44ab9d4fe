package scheduler

import (
	"context"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/model"
	"MeetingSync/internal/service"
)

const (
	TaskDirectorySync     = "directory_sync"
	TaskCalendarPushSweep = "calendar_push_sweep"
)

// DirectorySyncer 目录同步
type DirectorySyncer interface {
	RunAll(ctx context.Context, trigger service.Trigger) (*model.SyncRun, error)
}

// PendingPusher 待推送会议扫描
type PendingPusher interface {
	SweepPending(ctx context.Context, limit int) (*service.PushSummary, error)
}

// MeetingSyncTasks 目录同步与日历推送两个周期任务
func MeetingSyncTasks(cfg *config.SyncConfig, syncer DirectorySyncer, pusher PendingPusher) []Task {
	return []Task{
		{
			Name:        TaskDirectorySync,
			Description: "拉取全部会议目录并对账快照",
			Schedule:    cfg.Cron,
			Enabled:     syncer != nil && cfg.Cron != "",
			Timeout:     30 * time.Minute,
			Handler: func(ctx context.Context) error {
				// 单源失败已记入运行日志，这里只关心日志本身能否写入
				_, err := syncer.RunAll(ctx, service.Trigger{})
				return err
			},
		},
		{
			Name:        TaskCalendarPushSweep,
			Description: "推送有变更的会议到用户远程日历",
			Schedule:    cfg.PushCron,
			Enabled:     pusher != nil && cfg.PushCron != "",
			Timeout:     10 * time.Minute,
			Handler: func(ctx context.Context) error {
				_, err := pusher.SweepPending(ctx, cfg.PushLimit)
				return err
			},
		},
	}
}
