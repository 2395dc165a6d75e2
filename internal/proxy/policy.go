package proxy

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"locatorcheck/internal/config"
)

// Policy 代理可抓取目标的访问规则：命中任一 deny 即拒绝；
// 存在 allow 规则时必须至少命中一条
type Policy struct {
	allow []config.ProxyRule
	deny  []config.ProxyRule
}

// NewPolicy 由配置规则创建访问策略
func NewPolicy(rules []config.ProxyRule) *Policy {
	p := &Policy{}
	for _, r := range rules {
		switch r.Action {
		case "allow":
			p.allow = append(p.allow, r)
		case "deny":
			p.deny = append(p.deny, r)
		}
	}
	return p
}

// Allowed 判断目标地址能否经代理抓取
func (p *Policy) Allowed(target string) bool {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	for _, r := range p.deny {
		if match(u, r) {
			return false
		}
	}
	if len(p.allow) == 0 {
		return true
	}
	for _, r := range p.allow {
		if match(u, r) {
			return true
		}
	}
	return false
}

func match(u *url.URL, r config.ProxyRule) bool {
	s := u.String()
	switch r.Mode {
	case "prefix":
		return strings.HasPrefix(s, r.Pattern)
	case "regex":
		return matchRegex(s, r.Pattern)
	case "exact":
		return s == r.Pattern
	case "host":
		return strings.EqualFold(u.Hostname(), r.Pattern)
	case "cidr":
		return inPrefix(u.Hostname(), r.Pattern)
	default:
		return glob(s, r.Pattern)
	}
}

// inPrefix 只比较字面 IP 主机名，不做域名解析
func inPrefix(host, cidr string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	return prefix.Contains(addr.Unmap())
}

type regexpCache struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}

var regexCache = &regexpCache{m: make(map[string]*regexp.Regexp)}

// Get 获取编译后的正则，编译结果会被缓存
func (c *regexpCache) Get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.m[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.m[pattern] = re
	c.mu.Unlock()
	return re, nil
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func glob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(s, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(s, strings.TrimSuffix(pattern, "*")) {
		return true
	}
	return s == pattern
}
