package interfaces

import (
	"context"
	"time"

	"MeetingSync/internal/model"
)

// TokenUpdate 刷新/授权后待持久化的凭据字段；RefreshToken 为空表示保留原值
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// CredentialStore 凭据持久化。写入按凭据字段后写覆盖
type CredentialStore interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SaveTokens(ctx context.Context, userID string, update TokenUpdate) error
	SaveConnection(ctx context.Context, userID string, cred model.OAuthCredential) error
	MarkReauthRequired(ctx context.Context, userID string) error
	ClearCredential(ctx context.Context, userID string) error
}
