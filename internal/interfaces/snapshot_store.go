package interfaces

import (
	"context"

	"MeetingSync/internal/model"
)

// OpKind 批量写入操作类型
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// WriteOp 一条待提交的快照写操作
type WriteOp struct {
	Kind    OpKind
	Meeting *model.ExternalMeeting
}

// SnapshotStore 目录快照存储：按源读取上一次快照，按批原子提交
type SnapshotStore interface {
	// ListBySource 返回 external_id → 快照行
	ListBySource(ctx context.Context, source model.Source) (map[string]*model.ExternalMeeting, error)
	// ApplyBatch 原子提交一批写操作，超过 BatchLimit 返回 ErrBatchTooLarge
	ApplyBatch(ctx context.Context, ops []WriteOp) error
	// BatchLimit 单批操作上限
	BatchLimit() int
}
