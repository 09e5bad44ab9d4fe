package directoryb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"MeetingSync/internal/adapter"
	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/utils/httpclient"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes    = 16 << 20
	defaultDayParam = "d"
)

var (
	// errNoRows 某天页面没有解析出任何会议，按失败处理以保护该天的旧快照
	errNoRows = errors.New("no meeting rows parsed")
	// errNoValidRows 某天解析出的会议全部校验失败，同样按失败处理
	errNoValidRows = errors.New("no valid meeting rows")
)

func init() {
	adapter.Register(model.SourceDirectoryB, NewDirectoryBAdapter)
}

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	validate   *validator.Validate
	logger     *logrus.Logger
}

func NewDirectoryBAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		validate:   adapter.NewRecordValidator(),
		logger:     logger,
	}
}

// GetSource ========== 实现SourceAdapter接口 ==========
func (a *Adapter) GetSource() model.Source {
	return model.SourceDirectoryB
}

// FetchMeetings 按星期 0-6 逐天拉取；单天失败只记录该天，不影响其余六天
func (a *Adapter) FetchMeetings(ctx context.Context) (*model.FetchResult, error) {
	result := &model.FetchResult{Source: a.GetSource()}
	var lastErr error
	for day := 0; day <= 6; day++ {
		records, err := a.fetchDay(ctx, day)
		if err != nil {
			lastErr = err
			result.FailedWeekdays = append(result.FailedWeekdays, day)
			a.logger.WithError(err).WithFields(logrus.Fields{
				"source":  a.GetSource(),
				"weekday": day,
			}).Warn("目录B单天拉取失败，保留该天旧快照")
			continue
		}
		valid, skipped := adapter.FilterValid(a.validate, a.GetSource(), records, a.logger)
		result.Skipped += skipped
		if len(valid) == 0 {
			lastErr = errNoValidRows
			result.FailedWeekdays = append(result.FailedWeekdays, day)
			a.logger.WithFields(logrus.Fields{
				"source":  a.GetSource(),
				"weekday": day,
				"skipped": skipped,
			}).Warn("目录B单天会议全部校验失败，保留该天旧快照")
			continue
		}
		result.Meetings = append(result.Meetings, valid...)
	}

	if len(result.FailedWeekdays) == 7 {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: fmt.Errorf("七天全部拉取失败: %w", lastErr)}
	}
	if len(result.Meetings) == 0 {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: interfaces.ErrEmptyFetch}
	}
	a.logger.WithFields(logrus.Fields{
		"count":       len(result.Meetings),
		"skipped":     result.Skipped,
		"failed_days": result.FailedWeekdays,
	}).Info("成功获取目录B会议")
	return result, nil
}

func (a *Adapter) fetchDay(ctx context.Context, day int) ([]model.CanonicalMeeting, error) {
	dayURL, err := a.dayURL(day)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dayURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求第%d天会议页面失败: %w", day, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭目录B响应体失败: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("第%d天会议页面返回状态码 %d", day, resp.StatusCode)
	}

	records, err := ParseSchedule(io.LimitReader(resp.Body, maxBodyBytes), day)
	if err != nil {
		return nil, fmt.Errorf("解析第%d天会议页面失败: %w", day, err)
	}
	if len(records) == 0 {
		return nil, errNoRows
	}
	return records, nil
}

func (a *Adapter) dayURL(day int) (string, error) {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("base_url 无效: %q", a.cfg.BaseURL)
	}
	param := a.cfg.DayParam
	if param == "" {
		param = defaultDayParam
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(day))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
