// Package manual 手动兜底：复制脚本、打开目标页面并给出操作指引
package manual

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/pkg/browser"

	"locatorcheck/internal/logger"
	"locatorcheck/internal/script"
	"locatorcheck/pkg/model"
)

// Clipboard 剪贴板写入
type Clipboard interface {
	WriteAll(text string) error
}

// Opener 在新的顶层浏览上下文打开地址
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc 函数适配 Opener
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// SystemClipboard 系统剪贴板
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// SystemOpener 使用系统默认浏览器打开
var SystemOpener = OpenerFunc(func(_ context.Context, url string) error {
	return browser.OpenURL(url)
})

// Config 手动兜底配置
type Config struct {
	Clipboard  Clipboard
	Opener     Opener
	OpenTarget bool
	Logger     logger.Logger
}

// Presenter 手动兜底展示
type Presenter struct {
	clip       Clipboard
	opener     Opener
	openTarget bool
	log        logger.Logger
}

// New 创建手动兜底展示，Clipboard 为空时使用系统剪贴板
func New(cfg Config) *Presenter {
	if cfg.Clipboard == nil {
		cfg.Clipboard = SystemClipboard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Presenter{
		clip:       cfg.Clipboard,
		opener:     cfg.Opener,
		openTarget: cfg.OpenTarget,
		log:        cfg.Logger.With("component", "manual"),
	}
}

// Present 复制脚本并按需打开目标页面。
// 剪贴板写入失败时仍返回完整指引，脚本随指引一并交给调用方。
func (p *Presenter) Present(ctx context.Context, req model.ManualRequest) (model.ManualInstructions, error) {
	ins := model.ManualInstructions{TargetURL: req.TargetURL, Origin: req.Origin, Script: req.Script}
	if req.ProxyOffer != nil {
		ins.ProxyURL = req.ProxyOffer.ProxyURL
	}

	var copyErr error
	if err := p.clip.WriteAll(req.Script.String()); err != nil {
		copyErr = fmt.Errorf("copy script to clipboard: %w", err)
		p.log.Err(err, "写入剪贴板失败")
	} else {
		ins.Copied = true
	}

	if p.openTarget && p.opener != nil && req.TargetURL != "" && ctx.Err() == nil {
		if err := p.opener.Open(ctx, req.TargetURL); err != nil {
			p.log.Warn("打开目标页面失败", "url", req.TargetURL, "error", err.Error())
		} else {
			ins.Opened = true
		}
	}

	ins.Steps = Steps(ins)
	p.log.Info("已生成手动执行指引", "url", req.TargetURL, "origin", req.Origin, "copied", ins.Copied, "opened", ins.Opened)
	return ins, copyErr
}

// Steps 生成操作步骤
func Steps(ins model.ManualInstructions) []string {
	steps := make([]string, 0, 6)
	if ins.Copied {
		steps = append(steps, "The verification script has been copied to your clipboard.")
	} else {
		steps = append(steps, "Copy the verification script shown below.")
	}
	switch {
	case ins.Opened:
		steps = append(steps, "Switch to the newly opened tab showing "+ins.TargetURL+".")
	case ins.TargetURL != "":
		steps = append(steps, "Open "+ins.TargetURL+" in a new browser tab.")
	default:
		steps = append(steps, "Open the target page in a new browser tab.")
	}
	steps = append(steps,
		"Open the developer tools (F12) and select the Console panel.",
		"Paste the script and press Enter.",
		fmt.Sprintf("The matched element stays outlined until the next run and its label disappears after %s; "+
			"an error badge (shown for %s) means no match or an invalid locator.",
			script.DefaultMatchTTL, script.DefaultErrorTTL),
	)
	if ins.Origin == model.OriginRemote {
		if ins.ProxyURL != "" {
			steps = append(steps, "To verify inside the host instead, reload the embedded page through the proxy at "+
				ins.ProxyURL+" and verify again with proxy use allowed.")
		} else {
			steps = append(steps, "The page is cross-origin to the host; configure proxy.baseURL on the host's origin "+
				"to verify it inside the host.")
		}
	}
	return steps
}
