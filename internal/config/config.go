package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath 指定配置文件路径的环境变量
const EnvPath = "LOCATORCHECK_CONFIG"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Host     Host     `yaml:"host"`
	Delivery Delivery `yaml:"delivery"`
	Proxy    Proxy    `yaml:"proxy"`
	Manual   Manual   `yaml:"manual"`
	Server   Server   `yaml:"server"`
}

// Host 宿主页面与嵌入文档
type Host struct {
	Origin        string `yaml:"origin"`
	DevToolsURL   string `yaml:"devToolsURL"`
	PageURLPrefix string `yaml:"pageURLPrefix"`
	FrameSelector string `yaml:"frameSelector"`
}

// Delivery 投递超时配置
type Delivery struct {
	LoadTimeoutMS    int `yaml:"loadTimeoutMS"`
	MessageTimeoutMS int `yaml:"messageTimeoutMS"`
	ProbeTimeoutMS   int `yaml:"probeTimeoutMS"`
}

// Proxy 代理协作方配置。
// 代理必须与宿主页面同源：BaseURL 为空时取 host.origin，
// 宿主的开发服务器需把 /proxy 与 /health 转发到 server.listen。
type Proxy struct {
	BaseURL         string      `yaml:"baseURL"`
	CacheTTLSeconds int         `yaml:"cacheTTLSeconds"`
	FetchTimeoutMS  int         `yaml:"fetchTimeoutMS"`
	MaxBodyBytes    int64       `yaml:"maxBodyBytes"`
	UserAgent       string      `yaml:"userAgent"`
	Rules           []ProxyRule `yaml:"rules"`
}

// ProxyRule 代理目标访问规则
type ProxyRule struct {
	Action  string `yaml:"action"` // allow / deny
	Mode    string `yaml:"mode"`   // glob / prefix / regex / exact / host / cidr
	Pattern string `yaml:"pattern"`
}

// Manual 手动兜底配置
type Manual struct {
	OpenTarget bool   `yaml:"openTarget"`
	Opener     string `yaml:"opener"` // cdp / system / none
}

// Server HTTP 服务配置
type Server struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Sqlite.Dsn = "locatorcheck.sqlite3"
	c.Sqlite.Prefix = "locatorcheck_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	c.Log.File = "logs/locatorcheck.log"
	c.Host = Host{
		Origin:        "http://localhost:5173",
		DevToolsURL:   "http://127.0.0.1:9222",
		PageURLPrefix: "http://localhost:5173",
		FrameSelector: "iframe",
	}
	c.Delivery = Delivery{
		LoadTimeoutMS:    5000,
		MessageTimeoutMS: 2000,
		ProbeTimeoutMS:   2000,
	}
	c.Proxy = Proxy{
		CacheTTLSeconds: 300,
		FetchTimeoutMS:  15000,
		MaxBodyBytes:    5 << 20,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Rules:           DefaultProxyRules(),
	}
	c.Manual = Manual{OpenTarget: true, Opener: "cdp"}
	c.Server = Server{
		Listen:         ":8000",
		AllowedOrigins: []string{"http://localhost:5173"},
	}
	return c
}

// DefaultProxyRules 默认禁止代理抓取回环、链路本地与私有网段地址。
// 本地目标本就与宿主同源，不需要经过代理。
func DefaultProxyRules() []ProxyRule {
	rules := []ProxyRule{{Action: "deny", Mode: "host", Pattern: "localhost"}}
	for _, cidr := range []string{
		"0.0.0.0/8", "127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"169.254.0.0/16", "100.64.0.0/10", "::1/128", "fc00::/7", "fe80::/10",
	} {
		rules = append(rules, ProxyRule{Action: "deny", Mode: "cidr", Pattern: cidr})
	}
	return rules
}

// ProxyBaseURL 代理地址，未配置时与宿主页面同源
func (c *Config) ProxyBaseURL() string {
	if c.Proxy.BaseURL != "" {
		return c.Proxy.BaseURL
	}
	return c.Host.Origin
}

// Load 读取配置文件，path 为空时尝试环境变量，都没有时返回默认配置
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return NewConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML 在默认配置之上解析 YAML
func FromYAML(data []byte) (*Config, error) {
	c := NewConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验必要字段
func (c *Config) Validate() error {
	if c.Host.FrameSelector == "" {
		return fmt.Errorf("host.frameSelector is required")
	}
	for i, r := range c.Proxy.Rules {
		switch r.Action {
		case "allow", "deny":
		default:
			return fmt.Errorf("proxy.rules[%d]: unknown action %q", i, r.Action)
		}
		switch r.Mode {
		case "", "glob", "prefix", "regex", "exact", "host":
		case "cidr":
			if _, err := netip.ParsePrefix(r.Pattern); err != nil {
				return fmt.Errorf("proxy.rules[%d]: %w", i, err)
			}
		default:
			return fmt.Errorf("proxy.rules[%d]: unknown mode %q", i, r.Mode)
		}
	}
	if c.Proxy.BaseURL != "" && c.Host.Origin != "" && !SameOrigin(c.Proxy.BaseURL, c.Host.Origin) {
		return fmt.Errorf("proxy.baseURL %q must share the origin of host.origin %q", c.Proxy.BaseURL, c.Host.Origin)
	}
	switch c.Manual.Opener {
	case "", "cdp", "system", "none":
	default:
		return fmt.Errorf("manual.opener: unknown opener %q", c.Manual.Opener)
	}
	return nil
}

// LoadTimeout 嵌入文档加载等待上限
func (d Delivery) LoadTimeout() time.Duration {
	return msOr(d.LoadTimeoutMS, 5*time.Second)
}

// MessageTimeout 跨文档消息确认等待上限
func (d Delivery) MessageTimeout() time.Duration {
	return msOr(d.MessageTimeoutMS, 2*time.Second)
}

// ProbeTimeout 代理可用性探测上限
func (d Delivery) ProbeTimeout() time.Duration {
	return msOr(d.ProbeTimeoutMS, 2*time.Second)
}

// FetchTimeout 代理抓取远端页面的超时
func (p Proxy) FetchTimeout() time.Duration {
	return msOr(p.FetchTimeoutMS, 15*time.Second)
}

// CacheTTL 代理快照缓存有效期，0 表示不缓存
func (p Proxy) CacheTTL() time.Duration {
	if p.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// SameOrigin 比较 scheme://host:port，缺省端口按协议补全
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Hostname(), ub.Hostname()) &&
		port(ua) == port(ub)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func msOr(ms int, d time.Duration) time.Duration {
	if ms <= 0 {
		return d
	}
	return time.Duration(ms) * time.Millisecond
}
