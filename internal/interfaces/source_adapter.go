package interfaces

import (
	"context"

	"MeetingSync/internal/model"
)

// SourceAdapter 每个外部会议目录必须实现的核心接口
type SourceAdapter interface {
	GetSource() model.Source                                       // 源标识
	FetchMeetings(ctx context.Context) (*model.FetchResult, error) // 拉取并规范化为统一结构
}
