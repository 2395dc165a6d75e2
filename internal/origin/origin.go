// Package origin 判断目标页面与宿主是否同源可达
package origin

import (
	"net/url"
	"strings"

	"github.com/samber/lo"

	"locatorcheck/pkg/model"
)

// 视为本地的回环主机名
var loopbackHosts = []string{"localhost", "127.0.0.1", "::1", "0.0.0.0"}

// Classify 目标为回环主机或与宿主 host 完全一致时视为 Local，解析失败按 Remote 处理
func Classify(targetURL, hostOrigin string) model.OriginClass {
	u, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil || u.Host == "" {
		return model.OriginRemote
	}
	if lo.Contains(loopbackHosts, strings.ToLower(u.Hostname())) {
		return model.OriginLocal
	}
	if h, err := url.Parse(strings.TrimSpace(hostOrigin)); err == nil && h.Host != "" {
		if strings.EqualFold(u.Host, h.Host) {
			return model.OriginLocal
		}
	}
	return model.OriginRemote
}

// HasScheme 判断目标地址是否带有可导航的协议
func HasScheme(targetURL string) bool {
	u, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file":
		return u.Scheme == "file" || u.Host != ""
	default:
		return false
	}
}
