package interfaces

import (
	"errors"
	"fmt"

	"MeetingSync/internal/model"
)

var (
	// ErrEmptyFetch 拉取结果为空；禁止据此对账，否则会删光快照
	ErrEmptyFetch = errors.New("fetch returned no meetings")
	// ErrBatchTooLarge 单批操作数超过存储上限
	ErrBatchTooLarge = errors.New("batch exceeds operation limit")
	// ErrUnauthorized 远程日历返回 401
	ErrUnauthorized = errors.New("remote calendar rejected credentials")
	// ErrEventNotFound 远程事件不存在（404/410）
	ErrEventNotFound = errors.New("remote calendar event not found")
	// ErrReauthRequired refresh_token 过期或被撤销，需要用户重新授权
	ErrReauthRequired = errors.New("calendar connection needs re-authorization")
	// ErrNotConnected 用户未连接日历
	ErrNotConnected = errors.New("calendar not connected")
)

// FetchError 网络/超时/解析失败，下一个周期重试
type FetchError struct {
	Source model.Source
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Source, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ReconcileError 存储写入失败，中止该源本次对账
type ReconcileError struct {
	Source model.Source
	Batch  int // 失败批次序号（从 0 开始）
	Err    error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s batch %d: %v", e.Source, e.Batch, e.Err)
}
func (e *ReconcileError) Unwrap() error { return e.Err }

// CredentialError 凭据刷新失败
type CredentialError struct {
	UserID string
	Err    error
}

func (e *CredentialError) Error() string { return fmt.Sprintf("credential %s: %v", e.UserID, e.Err) }
func (e *CredentialError) Unwrap() error { return e.Err }

// PushError 远程日历调用失败，按会议记录，不中断其他会议
type PushError struct {
	UserID    string
	MeetingID uint64
	Err       error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push meeting %d for %s: %v", e.MeetingID, e.UserID, e.Err)
}
func (e *PushError) Unwrap() error { return e.Err }
