package delivery

import (
	"context"

	"locatorcheck/pkg/model"
)

// Frame 嵌入文档句柄
type Frame interface {
	// URL 当前嵌入内容地址
	URL() string

	// Proxied 嵌入内容是否经代理协作方获取
	Proxied() bool

	// Inject 以文档内 script 节点方式注入并执行脚本。
	// 跨源时返回 ErrAccessDenied，文档未加载完成时返回 ErrNotLoaded。
	Inject(ctx context.Context, script model.Script) error

	// WaitLoaded 等待嵌入文档加载完成信号，由调用方通过 ctx 限时
	WaitLoaded(ctx context.Context) error

	// PostMessage 向嵌入上下文投递结构化消息并等待确认
	PostMessage(ctx context.Context, msg Message) (Ack, error)

	// Navigate 将嵌入内容指向新地址，返回新的文档句柄
	Navigate(ctx context.Context, url string, proxied bool) (Frame, error)
}

// Proxy 代理协作方客户端
type Proxy interface {
	// RewriteURL 返回经代理重新提供的目标地址
	RewriteURL(targetURL string) (string, error)

	// Probe 检查代理是否可用
	Probe(ctx context.Context) error
}

// Presenter 手动兜底展示
type Presenter interface {
	Present(ctx context.Context, req model.ManualRequest) (model.ManualInstructions, error)
}
