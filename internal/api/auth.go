package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const ctxUserKey = "auth_user"

const (
	// stateAudience OAuth state 令牌的 aud，身份令牌不得携带
	stateAudience = "calendar-connect"
	stateTTL      = 10 * time.Minute
)

// UserLookup 按 ID 解析身份令牌中的用户
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// Authenticator 校验 HS256 身份令牌，sub 为用户 ID，角色以存储为准
type Authenticator struct {
	secret     []byte
	issuer     string
	adminRoles []string
	users      UserLookup
	logger     *logrus.Logger
}

func NewAuthenticator(cfg *config.AuthConfig, users UserLookup, logger *logrus.Logger) *Authenticator {
	roles := cfg.AdminRoles
	if len(roles) == 0 {
		roles = []string{model.RoleAdmin}
	}
	return &Authenticator{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		adminRoles: roles,
		users:      users,
		logger:     logger,
	}
}

// IssueToken 签发身份令牌（运维命令行与测试使用）
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// IssueState 签发绑定当前用户的短期 OAuth state
func (a *Authenticator) IssueState(userID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    a.issuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyState 校验回调携带的 state：签名、有效期、且由同一用户发起
func (a *Authenticator) VerifyState(raw, userID string) error {
	claims, err := a.parse(raw, jwt.WithAudience(stateAudience))
	if err != nil {
		return err
	}
	if claims.Subject != userID {
		return fmt.Errorf("state issued for %q", claims.Subject)
	}
	return nil
}

// RequireUser 解析 Authorization: Bearer <token> 并加载用户
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := a.subject(raw)
		if err != nil {
			a.logger.WithError(err).Debug("身份令牌校验失败")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := a.users.GetUser(c.Request.Context(), userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if err != nil {
			a.logger.WithError(err).WithField("user_id", userID).Error("加载令牌用户失败")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// RequireAdmin 须挂在 RequireUser 之后
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !user.HasRole(a.adminRoles) {
			a.logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Warn("非管理员访问管理接口")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// CurrentUser 当前请求的已认证用户
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

func (a *Authenticator) subject(raw string) (string, error) {
	claims, err := a.parse(raw)
	if err != nil {
		return "", err
	}
	if slices.Contains(claims.Audience, stateAudience) {
		return "", errors.New("state token is not an identity token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (a *Authenticator) parse(raw string, extra ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth.jwt_secret is not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	opts = append(opts, extra...)
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
