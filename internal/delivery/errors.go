package delivery

import "errors"

var (
	// ErrAccessDenied 同源策略拒绝访问嵌入文档，跨源嵌入时属于预期情况
	ErrAccessDenied = errors.New("embedded document access denied")
	// ErrNotLoaded 嵌入文档尚未加载完成
	ErrNotLoaded = errors.New("embedded document not loaded")
	// ErrDeliveryTimeout 跨文档消息未在时限内确认
	ErrDeliveryTimeout = errors.New("cross-document message not acknowledged")
	// ErrProxyUnavailable 代理协作方不可用
	ErrProxyUnavailable = errors.New("proxy unavailable")
	// ErrUnreachable 目标地址缺少协议，无法导航
	ErrUnreachable = errors.New("target url has no scheme")
	// ErrFrameMissing 宿主页面中找不到嵌入文档
	ErrFrameMissing = errors.New("embedded frame not found")
)
