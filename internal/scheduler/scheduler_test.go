package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/model"
	"MeetingSync/internal/service"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeSyncer struct {
	calls   atomic.Int32
	trigger service.Trigger
}

func (f *fakeSyncer) RunAll(_ context.Context, trigger service.Trigger) (*model.SyncRun, error) {
	f.calls.Add(1)
	f.trigger = trigger
	return &model.SyncRun{Success: true}, nil
}

type fakePusher struct {
	limit int
	err   error
}

func (f *fakePusher) SweepPending(_ context.Context, limit int) (*service.PushSummary, error) {
	f.limit = limit
	return &service.PushSummary{}, f.err
}

func TestRegisterMeetingSyncTasks(t *testing.T) {
	s := NewService(quietLogger())
	defer s.Stop()
	syncer, pusher := &fakeSyncer{}, &fakePusher{}
	cfg := &config.SyncConfig{Cron: "0 */6 * * *", PushCron: "*/10 * * * *", PushLimit: 75}

	if err := s.RegisterTasks(MeetingSyncTasks(cfg, syncer, pusher)); err != nil {
		t.Fatalf("register: %v", err)
	}
	tasks := s.ListTasks()
	if len(tasks) != 2 || tasks[0].Name != TaskCalendarPushSweep || tasks[1].Name != TaskDirectorySync {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	if err := s.RunTaskNow(TaskDirectorySync); err != nil {
		t.Fatalf("run sync: %v", err)
	}
	if syncer.calls.Load() != 1 || syncer.trigger.Manual {
		t.Fatalf("scheduled sync should run once as a non-manual trigger")
	}
	if err := s.RunTaskNow(TaskCalendarPushSweep); err != nil {
		t.Fatalf("run push: %v", err)
	}
	if pusher.limit != 75 {
		t.Fatalf("expected configured push limit, got %d", pusher.limit)
	}
}

func TestDisabledTaskIsSkipped(t *testing.T) {
	s := NewService(quietLogger())
	defer s.Stop()
	cfg := &config.SyncConfig{Cron: "0 */6 * * *"}

	if err := s.RegisterTasks(MeetingSyncTasks(cfg, &fakeSyncer{}, &fakePusher{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := s.GetTaskByName(TaskCalendarPushSweep); ok {
		t.Fatalf("push sweep without cron should not be registered")
	}
	if err := s.RunTaskNow(TaskCalendarPushSweep); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestAddTaskRejectsBadInput(t *testing.T) {
	s := NewService(quietLogger())
	defer s.Stop()
	noop := func(context.Context) error { return nil }

	if err := s.AddTask(Task{Name: "bad", Schedule: "not a cron", Handler: noop}); err == nil {
		t.Fatalf("expected invalid cron to be rejected")
	}
	if err := s.AddTask(Task{Name: "nil", Schedule: "* * * * *"}); err == nil {
		t.Fatalf("expected missing handler to be rejected")
	}
	if err := s.AddTask(Task{Name: "dup", Schedule: "* * * * *", Handler: noop}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddTask(Task{Name: "dup", Schedule: "* * * * *", Handler: noop}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
}

func TestRunTaskNowReportsHandlerError(t *testing.T) {
	s := NewService(quietLogger())
	defer s.Stop()
	boom := errors.New("boom")
	cfg := &config.SyncConfig{PushCron: "*/10 * * * *"}
	if err := s.RegisterTasks(MeetingSyncTasks(cfg, nil, &fakePusher{err: boom})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RunTaskNow(TaskCalendarPushSweep); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestTaskTimeoutCancelsContext(t *testing.T) {
	s := NewService(quietLogger())
	defer s.Stop()
	err := s.AddTask(Task{
		Name:     "slow",
		Schedule: "0 0 1 1 *",
		Timeout:  20 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RunTaskNow("slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStartRunsScheduledTask(t *testing.T) {
	s := NewService(quietLogger())
	var runs atomic.Int32
	if err := s.AddTask(Task{Name: "tick", Schedule: "@every 1s", Handler: func(context.Context) error {
		runs.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatalf("scheduled task never ran")
	}
}
