package service

import (
	"context"
	"sort"
	"time"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"github.com/sirupsen/logrus"
)

// DiffResult 一次拉取相对旧快照的差异
type DiffResult struct {
	Added   []*model.ExternalMeeting
	Updated []*model.ExternalMeeting
	Deleted []*model.ExternalMeeting
	// Kept 因所在星期拉取失败而保留的旧记录数
	Kept  int
	Total int
}

// Ops 按 新增→更新→删除 顺序展开为写操作
func (d DiffResult) Ops() []interfaces.WriteOp {
	ops := make([]interfaces.WriteOp, 0, len(d.Added)+len(d.Updated)+len(d.Deleted))
	for _, m := range d.Added {
		ops = append(ops, interfaces.WriteOp{Kind: interfaces.OpCreate, Meeting: m})
	}
	for _, m := range d.Updated {
		ops = append(ops, interfaces.WriteOp{Kind: interfaces.OpUpdate, Meeting: m})
	}
	for _, m := range d.Deleted {
		ops = append(ops, interfaces.WriteOp{Kind: interfaces.OpDelete, Meeting: m})
	}
	return ops
}

// Diff 纯函数。同一 external_id 重复出现时以最后一条为准；
// 旧快照里未出现的记录标记删除，除非它属于本次拉取失败的星期。
func Diff(fetched *model.FetchResult, existing map[string]*model.ExternalMeeting, now time.Time) DiffResult {
	order := make([]string, 0, len(fetched.Meetings))
	latest := make(map[string]model.CanonicalMeeting, len(fetched.Meetings))
	for _, rec := range fetched.Meetings {
		if _, seen := latest[rec.ExternalID]; !seen {
			order = append(order, rec.ExternalID)
		}
		latest[rec.ExternalID] = rec
	}

	var res DiffResult
	res.Total = len(order)
	for _, id := range order {
		rec := latest[id]
		old, ok := existing[id]
		if !ok {
			res.Added = append(res.Added, rec.ToExternal(fetched.Source, now))
			continue
		}
		if old.Canonical().Differs(rec) {
			res.Updated = append(res.Updated, rec.MergeInto(old, now))
		}
	}

	failed := make(map[int]bool, len(fetched.FailedWeekdays))
	for _, d := range fetched.FailedWeekdays {
		failed[d] = true
	}
	for id, old := range existing {
		if _, ok := latest[id]; ok {
			continue
		}
		if failed[old.Weekday] {
			res.Kept++
			continue
		}
		res.Deleted = append(res.Deleted, old)
	}
	sort.Slice(res.Deleted, func(i, j int) bool { return res.Deleted[i].ID < res.Deleted[j].ID })
	return res
}

// Reconciler 对账引擎：差异计算 + 按存储批次上限分批提交
type Reconciler struct {
	store  interfaces.SnapshotStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewReconciler(store interfaces.SnapshotStore, logger *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ReconcileSource 读取该源当前快照后对账
func (r *Reconciler) ReconcileSource(ctx context.Context, fetched *model.FetchResult) (model.SourceSummary, error) {
	if err := guardFetch(fetched); err != nil {
		return model.SourceSummary{}, err
	}
	existing, err := r.store.ListBySource(ctx, fetched.Source)
	if err != nil {
		return model.SourceSummary{}, &interfaces.ReconcileError{Source: fetched.Source, Batch: -1, Err: err}
	}
	return r.Reconcile(ctx, fetched, existing)
}

// Reconcile 空拉取直接拒绝，旧快照保持不变
func (r *Reconciler) Reconcile(ctx context.Context, fetched *model.FetchResult, existing map[string]*model.ExternalMeeting) (model.SourceSummary, error) {
	if err := guardFetch(fetched); err != nil {
		return model.SourceSummary{}, err
	}
	diff := Diff(fetched, existing, r.now())
	summary := model.SourceSummary{
		Added:   len(diff.Added),
		Updated: len(diff.Updated),
		Deleted: len(diff.Deleted),
		Total:   diff.Total,
	}
	log := r.logger.WithField("source", fetched.Source)

	batches := interfaces.ChunkSlice(diff.Ops(), r.store.BatchLimit())
	for i, batch := range batches {
		if err := r.store.ApplyBatch(ctx, batch); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"batch": i, "batches": len(batches)}).Error("快照批量写入失败，中止该源本次对账")
			return summary, &interfaces.ReconcileError{Source: fetched.Source, Batch: i, Err: err}
		}
	}

	log.WithFields(logrus.Fields{
		"added":   summary.Added,
		"updated": summary.Updated,
		"deleted": summary.Deleted,
		"kept":    diff.Kept,
		"total":   summary.Total,
		"batches": len(batches),
	}).Info("目录对账完成")
	return summary, nil
}

func guardFetch(fetched *model.FetchResult) error {
	if fetched == nil {
		return &interfaces.FetchError{Err: interfaces.ErrEmptyFetch}
	}
	if len(fetched.Meetings) == 0 {
		return &interfaces.FetchError{Source: fetched.Source, Err: interfaces.ErrEmptyFetch}
	}
	return nil
}
