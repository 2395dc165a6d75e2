package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client 代理协作方客户端，供编排器请求改写地址与探测可用性
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient 创建代理客户端
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse proxy base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy base url %q must be absolute", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: u, http: hc}, nil
}

// RewriteURL 返回 GET {base}/proxy?url=<target>
func (c *Client) RewriteURL(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("empty target url")
	}
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/proxy"
	u.RawQuery = url.Values{"url": {target}}.Encode()
	return u.String(), nil
}

// Probe 请求健康检查接口
func (c *Client) Probe(ctx context.Context) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy health returned %d", resp.StatusCode)
	}
	return nil
}
