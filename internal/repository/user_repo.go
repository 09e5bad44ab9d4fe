package repository

import (
	"context"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户仓储，日历凭据字段按列单独写入（interfaces.CredentialStore）
type UserRepository interface {
	interfaces.CredentialStore
	Create(ctx context.Context, u *model.User) error
	UpdatePreferences(ctx context.Context, userID string, prefs model.SyncPreferences) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) UpdatePreferences(ctx context.Context, userID string, prefs model.SyncPreferences) error {
	return r.updateColumns(ctx, userID, map[string]interface{}{
		"sync_internal":    prefs.Internal,
		"sync_directory_a": prefs.DirectoryA,
		"sync_directory_b": prefs.DirectoryB,
	})
}

// SaveTokens 刷新结果写回；未下发新 refresh_token 时保留旧值
func (r *userRepository) SaveTokens(ctx context.Context, userID string, update interfaces.TokenUpdate) error {
	cols := map[string]interface{}{
		"calendar_access_token": update.AccessToken,
		"calendar_expires_at":   update.ExpiresAt,
	}
	if update.RefreshToken != "" {
		cols["calendar_refresh_token"] = update.RefreshToken
	}
	return r.updateColumns(ctx, userID, cols)
}

func (r *userRepository) SaveConnection(ctx context.Context, userID string, cred model.OAuthCredential) error {
	cols := map[string]interface{}{
		"calendar_connected":     true,
		"calendar_account_email": cred.AccountEmail,
		"calendar_access_token":  cred.AccessToken,
		"calendar_expires_at":    cred.ExpiresAt,
		"calendar_granted_scope": cred.GrantedScope,
		"calendar_needs_reauth":  false,
	}
	if cred.RefreshToken != "" {
		cols["calendar_refresh_token"] = cred.RefreshToken
	}
	return r.updateColumns(ctx, userID, cols)
}

func (r *userRepository) MarkReauthRequired(ctx context.Context, userID string) error {
	return r.updateColumns(ctx, userID, map[string]interface{}{"calendar_needs_reauth": true})
}

func (r *userRepository) ClearCredential(ctx context.Context, userID string) error {
	return r.updateColumns(ctx, userID, map[string]interface{}{
		"calendar_connected":     false,
		"calendar_account_email": "",
		"calendar_access_token":  "",
		"calendar_refresh_token": "",
		"calendar_expires_at":    nil,
		"calendar_granted_scope": "",
		"calendar_needs_reauth":  false,
	})
}

func (r *userRepository) updateColumns(ctx context.Context, userID string, cols map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
