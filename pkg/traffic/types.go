package traffic

import (
	"mime"
	"net/http"
	"strings"
)

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// FromHTTP 从标准库 Header 转换，多值只保留第一个
func FromHTTP(src http.Header) Header {
	h := make(Header, len(src))
	for k, v := range src {
		if len(v) > 0 {
			h.Set(k, v[0])
		}
	}
	return h
}

// Response 中立的响应模型
type Response struct {
	URL        string // 跟随重定向后的最终地址
	StatusCode int    // 状态码
	Headers    Header // 响应头
	Body       []byte // 响应体数据
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    make(Header),
	}
}

// ContentType 返回响应的媒体类型（不含参数）
func (r *Response) ContentType() string {
	ct := r.Headers.Get("content-type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt
}

// IsHTML 判断响应是否为 HTML 文档
func (r *Response) IsHTML() bool {
	switch r.ContentType() {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
