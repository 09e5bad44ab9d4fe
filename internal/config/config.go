package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig          `mapstructure:"database"` // 数据库配置
	Sync     SyncConfig              `mapstructure:"sync"`     // 同步调度配置
	Sources  map[string]SourceConfig `mapstructure:"sources"`  // 各会议目录源独立配置
	OAuth    OAuthConfig             `mapstructure:"oauth"`    // 远程日历 OAuth 配置
	Calendar CalendarConfig          `mapstructure:"calendar"` // 日历推送配置
	Auth     AuthConfig              `mapstructure:"auth"`     // 手动触发接口鉴权
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`            // postgres / sqlite
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM 日志级别：silent/error/warn/info
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	Cron       string   `mapstructure:"cron"`        // 目录同步 Cron 表达式（默认每 6 小时）
	PushCron   string   `mapstructure:"push_cron"`   // 待推送会议扫描 Cron 表达式
	PushLimit  int      `mapstructure:"push_limit"`  // 单次扫描最多处理的会议数
	BatchLimit int      `mapstructure:"batch_limit"` // 单批写入操作上限
	AlertRoles []string `mapstructure:"alert_roles"` // 告警通知目标角色
}

// SourceConfig 单个目录源的独立配置
type SourceConfig struct {
	Enabled   bool          `mapstructure:"enabled"`    // 是否启用
	BaseURL   string        `mapstructure:"base_url"`   // 接口/页面地址
	Timeout   time.Duration `mapstructure:"timeout"`    // 单次请求超时
	Proxy     string        `mapstructure:"proxy"`      // 代理地址
	Latitude  float64       `mapstructure:"latitude"`   // 搜索中心纬度（JSON 源）
	Longitude float64       `mapstructure:"longitude"`  // 搜索中心经度（JSON 源）
	Radius    float64       `mapstructure:"radius"`     // 搜索半径（英里）
	DayParam  string        `mapstructure:"day_param"`  // 按星期拉取时的 URL 参数名（HTML 源）
	UserAgent string        `mapstructure:"user_agent"` // 请求 UA
}

// OAuthConfig 远程日历 OAuth2 配置
type OAuthConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	AuthURL      string        `mapstructure:"auth_url"`
	TokenURL     string        `mapstructure:"token_url"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	Scopes       []string      `mapstructure:"scopes"`
	RefreshSkew  time.Duration `mapstructure:"refresh_skew"` // 过期前提前刷新的余量
}

// CalendarConfig 日历事件构建配置
type CalendarConfig struct {
	CalendarID      string            `mapstructure:"calendar_id"`      // 目标日历，默认 primary
	DefaultTimezone string            `mapstructure:"default_timezone"` // 用户未设置时区时使用
	Timeout         time.Duration     `mapstructure:"timeout"`          // 日历 API 单次调用超时
	TypeTags        map[string]string `mapstructure:"type_tags"`        // 会议类型 → 标题前缀
	Colors          map[string]string `mapstructure:"colors"`           // 会议类型 → 颜色编号
	ProductID       string            `mapstructure:"product_id"`       // iCal PRODID
}

// AuthConfig 身份令牌校验配置
type AuthConfig struct {
	JWTSecret  string   `mapstructure:"jwt_secret"`
	Issuer     string   `mapstructure:"issuer"`
	AdminRoles []string `mapstructure:"admin_roles"`
}

// LoadConfig 加载配置文件（默认 ./config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig(path string, logger *logrus.Logger) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	v := viper.New()
	setDefaults(v)

	// 2. 读取 config.yaml
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	normalize(&cfg)

	if logger != nil {
		v.OnConfigChange(func(e fsnotify.Event) {
			logger.WithFields(logrus.Fields{"file": e.Name, "op": e.Op.String()}).
				Warn("配置文件已变更，重启进程后生效")
		})
		v.WatchConfig()
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("sync.cron", "0 */6 * * *")
	v.SetDefault("sync.push_cron", "*/10 * * * *")
	v.SetDefault("sync.push_limit", 200)
	v.SetDefault("sync.batch_limit", DefaultBatchLimit)
	v.SetDefault("sync.alert_roles", []string{"admin"})
	v.SetDefault("oauth.refresh_skew", time.Minute)
	v.SetDefault("oauth.auth_url", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("oauth.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("oauth.scopes", []string{"https://www.googleapis.com/auth/calendar.events"})
	v.SetDefault("calendar.calendar_id", "primary")
	v.SetDefault("calendar.default_timezone", DefaultTimezone)
	v.SetDefault("calendar.timeout", 30*time.Second)
	v.SetDefault("calendar.product_id", "-//MeetingSync//Recovery Meetings//EN")
	v.SetDefault("auth.admin_roles", []string{"admin"})
}

const (
	DefaultBatchLimit    = 500
	DefaultTimezone      = "America/New_York"
	DefaultSourceTimeout = 30 * time.Second
)

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	for name, src := range cfg.Sources {
		// 例：DIRECTORYA_PROXY
		if v := os.Getenv(strings.ToUpper(name) + "_PROXY"); v != "" {
			src.Proxy = v
			cfg.Sources[name] = src
		}
	}
}

// normalize 补齐零值配置
func normalize(cfg *Config) {
	if cfg.Sync.BatchLimit <= 0 || cfg.Sync.BatchLimit > DefaultBatchLimit {
		cfg.Sync.BatchLimit = DefaultBatchLimit
	}
	for name, src := range cfg.Sources {
		if src.Timeout <= 0 {
			src.Timeout = DefaultSourceTimeout
		}
		cfg.Sources[name] = src
	}
	if cfg.Calendar.TypeTags == nil {
		cfg.Calendar.TypeTags = map[string]string{}
	}
	if cfg.Calendar.Colors == nil {
		cfg.Calendar.Colors = map[string]string{}
	}
}

// Source 按源名称取配置（viper 会把 map 的 key 统一转小写）
func (c *Config) Source(name string) (SourceConfig, bool) {
	if src, ok := c.Sources[name]; ok {
		return src, true
	}
	src, ok := c.Sources[strings.ToLower(name)]
	return src, ok
}

// TypeTag 会议类型对应的标题前缀
func (c *CalendarConfig) TypeTag(meetingType string) string {
	if tag := lookupFold(c.TypeTags, meetingType); tag != "" {
		return tag
	}
	return defaultTypeTags[strings.ToLower(meetingType)]
}

// Color 会议类型对应的日历颜色编号
func (c *CalendarConfig) Color(meetingType string) string {
	if color := lookupFold(c.Colors, meetingType); color != "" {
		return color
	}
	return defaultColors[strings.ToLower(meetingType)]
}

var defaultTypeTags = map[string]string{
	"internal":   "Coaching",
	"directorya": "NA",
	"directoryb": "AA",
}

var defaultColors = map[string]string{
	"internal":   "9",
	"directorya": "10",
	"directoryb": "11",
}

func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return m[strings.ToLower(key)]
}
