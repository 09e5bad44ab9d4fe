package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"MeetingSync/internal/config"

	"github.com/sirupsen/logrus"
)

// DefaultUserAgent 未配置 UA 时使用
const DefaultUserAgent = "MeetingSync/1.0 (+directory-sync)"

// NewHTTPClient 目录源 HTTP 客户端（支持代理、单次请求超时、自动解压）
func NewHTTPClient(cfg *config.SourceConfig, logger *logrus.Logger) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultSourceTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return newClient(timeout, cfg.Proxy, ua, logger)
}

// NewAPIClient 远程日历/OAuth 调用使用的客户端，只限定超时
func NewAPIClient(timeout time.Duration, logger *logrus.Logger) *http.Client {
	if timeout <= 0 {
		timeout = config.DefaultSourceTimeout
	}
	return newClient(timeout, "", "", logger)
}

func newClient(timeout time.Duration, proxy, userAgent string, logger *logrus.Logger) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true, // 由 compressedTransport 处理 gzip
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// 配置代理
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			logger.WithError(err).WithField("proxy", proxy).Warn("代理地址解析失败，将不使用代理")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			logger.WithField("proxy", proxy).Info("HTTP客户端已配置代理")
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &compressedTransport{transport: transport, userAgent: userAgent, logger: logger},
	}
}

type compressedTransport struct {
	transport http.RoundTripper
	userAgent string
	logger    *logrus.Logger
}

func (c *compressedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTripper 不应修改原请求
	req = req.Clone(req.Context())
	req.Header.Set("Accept-Encoding", "gzip")
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// 处理gzip解压
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.WithError(err).Warn("gzip解压失败，返回原始响应")
			return resp, nil
		}
		resp.Body = &gzipReadCloser{
			Reader: gzReader,
			closer: resp.Body,
		}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}

	return resp, nil
}

// gzipReadCloser 关闭时同时关闭解压 reader 与原始响应体
type gzipReadCloser struct {
	*gzip.Reader
	closer io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	if err := g.Reader.Close(); err != nil {
		_ = g.closer.Close()
		return err
	}
	return g.closer.Close()
}
