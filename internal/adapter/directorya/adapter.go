package directorya

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"MeetingSync/internal/adapter"
	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/utils/httpclient"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes 单次响应体上限
const maxBodyBytes = 32 << 20

func init() {
	adapter.Register(model.SourceDirectoryA, NewDirectoryAAdapter)
}

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	validate   *validator.Validate
	logger     *logrus.Logger
}

func NewDirectoryAAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		validate:   adapter.NewRecordValidator(),
		logger:     logger,
	}
}

// GetSource ========== 实现SourceAdapter接口 ==========
func (a *Adapter) GetSource() model.Source {
	return model.SourceDirectoryA
}

func (a *Adapter) FetchMeetings(ctx context.Context) (*model.FetchResult, error) {
	// 1. 按中心坐标 + 半径请求
	reqURL, err := a.searchURL()
	if err != nil {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: fmt.Errorf("请求会议列表失败: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭目录A响应体失败: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: fmt.Errorf("会议列表返回状态码 %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: fmt.Errorf("读取会议列表失败: %w", err)}
	}

	// 2. 逐条解码，单条坏数据只跳过
	var rawItems []json.RawMessage
	if err := json.Unmarshal(body, &rawItems); err != nil {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: fmt.Errorf("解析会议列表失败: %w", err)}
	}
	records := make([]model.CanonicalMeeting, 0, len(rawItems))
	skipped := 0
	for i, item := range rawItems {
		var raw model.DirectoryAMeeting
		if err := json.Unmarshal(item, &raw); err != nil {
			skipped++
			a.logger.WithError(err).WithField("index", i).Warn("目录A会议记录格式错误，跳过")
			continue
		}
		records = append(records, a.toCanonical(raw))
	}

	// 3. 校验
	valid, invalid := adapter.FilterValid(a.validate, a.GetSource(), records, a.logger)
	skipped += invalid
	if len(valid) == 0 {
		return nil, &interfaces.FetchError{Source: a.GetSource(), Err: interfaces.ErrEmptyFetch}
	}

	a.logger.WithFields(logrus.Fields{"count": len(valid), "skipped": skipped}).Info("成功获取目录A会议")
	return &model.FetchResult{Source: a.GetSource(), Meetings: valid, Skipped: skipped}, nil
}

func (a *Adapter) searchURL() (string, error) {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("base_url 无效: %q", a.cfg.BaseURL)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(a.cfg.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(a.cfg.Longitude, 'f', -1, 64))
	if a.cfg.Radius > 0 {
		q.Set("radius", strconv.FormatFloat(a.cfg.Radius, 'f', -1, 64))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Adapter) toCanonical(raw model.DirectoryAMeeting) model.CanonicalMeeting {
	loc := model.Location{
		Name:             strings.TrimSpace(raw.Location),
		FormattedAddress: strings.TrimSpace(raw.FormattedAddress),
		Street:           strings.TrimSpace(raw.Address),
		City:             strings.TrimSpace(raw.City),
		State:            strings.TrimSpace(raw.State),
		PostalCode:       strings.TrimSpace(raw.PostalCode),
		Country:          strings.TrimSpace(raw.Country),
	}
	lat, lng := raw.Latitude.Ptr(), raw.Longitude.Ptr()
	if lat != nil && lng != nil && !(*lat == 0 && *lng == 0) {
		loc.Latitude, loc.Longitude = lat, lng
	}
	if loc.FormattedAddress == "" {
		loc.FormattedAddress = joinAddress(loc)
	}

	conference := strings.TrimSpace(raw.ConferenceURL)
	attendance := strings.ToLower(raw.Attendance)
	return model.CanonicalMeeting{
		ExternalID:    string(raw.ID),
		Name:          strings.TrimSpace(raw.Name),
		Weekday:       int(raw.Day),
		StartTime:     NormalizeTime(raw.Time),
		Location:      loc,
		IsVirtual:     conference != "" || attendance == "online" || attendance == "hybrid",
		ConferenceURL: conference,
		Notes:         strings.TrimSpace(raw.Notes),
		Formats:       raw.Formats,
		ContactName:   strings.TrimSpace(raw.ContactName),
		ContactPhone:  strings.TrimSpace(raw.ContactPhone),
		ContactEmail:  strings.TrimSpace(raw.ContactEmail),
	}
}

// NormalizeTime "7:00" / "19:00:00" → "07:00"/"19:00"；无法识别时原样返回交给校验
func NormalizeTime(s string) string {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return s
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return s
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func joinAddress(loc model.Location) string {
	var parts []string
	for _, p := range []string{loc.Street, loc.City, strings.TrimSpace(loc.State + " " + loc.PostalCode), loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
