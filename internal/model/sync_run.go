package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SourceSummary 单个源在一次运行中的对账结果
type SourceSummary struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Deleted    int `json:"deleted"`
	Total      int `json:"total"`
	ErrorCount int `json:"error_count"`
}

// RunError 运行中记录的单条错误
type RunError struct {
	Source    Source    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRun 每次调度/手动触发写入一条，只追加不修改
type SyncRun struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Timestamp   time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
	Success     bool           `gorm:"column:success" json:"success"`
	Summaries   datatypes.JSON `gorm:"column:summaries" json:"summaries"` // map[Source]SourceSummary
	DurationMs  int64          `gorm:"column:duration_ms" json:"duration_ms"`
	Errors      datatypes.JSON `gorm:"column:errors" json:"errors"` // []RunError
	Manual      bool           `gorm:"column:manual" json:"manual"`
	TriggeredBy *string        `gorm:"column:triggered_by;type:varchar(64)" json:"triggered_by,omitempty"`
}

func (SyncRun) TableName() string { return "sync_runs" }

// SummaryMap 解出各源汇总
func (r *SyncRun) SummaryMap() map[Source]SourceSummary {
	out := map[Source]SourceSummary{}
	if len(r.Summaries) > 0 {
		_ = json.Unmarshal(r.Summaries, &out)
	}
	return out
}

// ErrorList 解出错误列表
func (r *SyncRun) ErrorList() []RunError {
	var out []RunError
	if len(r.Errors) > 0 {
		_ = json.Unmarshal(r.Errors, &out)
	}
	return out
}

// NewSyncRun 组装运行记录
func NewSyncRun(id string, started time.Time, duration time.Duration, summaries map[Source]SourceSummary, errs []RunError, manual bool, triggeredBy string) (*SyncRun, error) {
	if errs == nil {
		errs = []RunError{}
	}
	summaryJSON, err := json.Marshal(summaries)
	if err != nil {
		return nil, err
	}
	errorJSON, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	run := &SyncRun{
		ID:         id,
		Timestamp:  started,
		Success:    len(errs) == 0,
		Summaries:  summaryJSON,
		DurationMs: duration.Milliseconds(),
		Errors:     errorJSON,
		Manual:     manual,
	}
	if triggeredBy != "" {
		run.TriggeredBy = &triggeredBy
	}
	return run, nil
}
