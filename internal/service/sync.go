package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Trigger 一次运行的触发来源
type Trigger struct {
	Manual      bool
	TriggeredBy string // 手动触发者用户ID
}

// SyncService 目录同步：各源独立拉取+对账，写运行日志，失败时告警
type SyncService struct {
	sources    []interfaces.SourceAdapter
	reconciler *Reconciler
	runs       repository.SyncRunRepository
	notes      repository.NotificationRepository
	alertRoles []string
	logger     *logrus.Logger
	now        func() time.Time
}

func NewSyncService(
	sources []interfaces.SourceAdapter,
	store interfaces.SnapshotStore,
	runs repository.SyncRunRepository,
	notes repository.NotificationRepository,
	alertRoles []string,
	logger *logrus.Logger,
) *SyncService {
	if len(alertRoles) == 0 {
		alertRoles = []string{model.RoleAdmin}
	}
	return &SyncService{
		sources:    sources,
		reconciler: NewReconciler(store, logger),
		runs:       runs,
		notes:      notes,
		alertRoles: alertRoles,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type sourceOutcome struct {
	source  model.Source
	summary model.SourceSummary
	errs    []model.RunError
}

// RunAll 所有源并发执行，单个源失败不影响其他源；只有写运行日志失败才返回 error
func (s *SyncService) RunAll(ctx context.Context, trigger Trigger) (*model.SyncRun, error) {
	started := s.now()
	outcomes := make([]sourceOutcome, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			outcomes[i] = s.runSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	summaries := make(map[model.Source]model.SourceSummary, len(outcomes))
	var runErrs []model.RunError
	for _, o := range outcomes {
		summaries[o.source] = o.summary
		runErrs = append(runErrs, o.errs...)
	}
	if len(s.sources) == 0 {
		runErrs = append(runErrs, model.RunError{Message: "没有启用的目录源", Timestamp: started})
	}

	run, err := model.NewSyncRun(uuid.NewString(), started, s.now().Sub(started), summaries, runErrs, trigger.Manual, trigger.TriggeredBy)
	if err != nil {
		return nil, fmt.Errorf("组装运行记录失败: %w", err)
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("写入运行记录失败: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"manual":      trigger.Manual,
		"duration_ms": run.DurationMs,
		"errors":      len(runErrs),
	})
	if run.Success {
		log.Info("目录同步运行完成")
		return run, nil
	}
	log.Error("目录同步运行存在失败，发送告警")
	if err := s.raiseAlert(ctx, run, runErrs); err != nil {
		// 告警写入失败不影响运行结果
		log.WithError(err).Error("写入告警失败")
	}
	return run, nil
}

func (s *SyncService) runSource(ctx context.Context, src interfaces.SourceAdapter) sourceOutcome {
	out := sourceOutcome{source: src.GetSource()}
	log := s.logger.WithField("source", out.source)

	fetched, err := src.FetchMeetings(ctx)
	if err != nil {
		log.WithError(err).Error("目录拉取失败，本次不对账")
		out.summary.ErrorCount = 1
		out.errs = append(out.errs, s.runError(out.source, err))
		return out
	}
	for _, day := range fetched.FailedWeekdays {
		out.errs = append(out.errs, model.RunError{
			Source:    out.source,
			Message:   fmt.Sprintf("weekday %d fetch failed; existing meetings for that day kept", day),
			Timestamp: s.now(),
		})
	}

	summary, err := s.reconciler.ReconcileSource(ctx, fetched)
	out.summary = summary
	if err != nil {
		log.WithError(err).Error("目录对账失败")
		out.errs = append(out.errs, s.runError(out.source, err))
	}
	out.summary.ErrorCount = len(out.errs)
	return out
}

func (s *SyncService) runError(source model.Source, err error) model.RunError {
	msg := err.Error()
	if errors.Is(err, interfaces.ErrEmptyFetch) {
		msg = "fetch returned no meetings; reconciliation skipped"
	}
	return model.RunError{Source: source, Message: msg, Timestamp: s.now()}
}

func (s *SyncService) raiseAlert(ctx context.Context, run *model.SyncRun, runErrs []model.RunError) error {
	failed := map[string]bool{}
	for _, e := range runErrs {
		if e.Source != "" {
			failed[string(e.Source)] = true
		}
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	errJSON, err := json.Marshal(runErrs)
	if err != nil {
		return err
	}
	rolesJSON, err := json.Marshal(s.alertRoles)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Directory sync finished with %d error(s)", len(runErrs))
	if len(names) > 0 {
		msg += ": " + strings.Join(names, ", ")
	}
	return s.notes.Create(ctx, &model.Notification{
		ID:          uuid.NewString(),
		Type:        model.NotificationDirectorySyncFailure,
		Severity:    model.SeverityError,
		Message:     msg,
		Errors:      errJSON,
		TargetRoles: rolesJSON,
		RunID:       run.ID,
		CreatedAt:   s.now(),
	})
}

// Sources 已启用的源
func (s *SyncService) Sources() []model.Source {
	out := make([]model.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.GetSource())
	}
	return out
}
