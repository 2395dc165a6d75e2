package delivery

import (
	"context"
	"sync"

	"locatorcheck/pkg/model"
)

// fakeFrame 模拟嵌入文档，记录调用顺序
type fakeFrame struct {
	mu         sync.Mutex
	url        string
	proxied    bool
	injectErrs []error
	loaded     chan struct{}
	waiting    chan struct{}
	ack        func(Message) (Ack, error)
	next       *fakeFrame
	navErr     error
	calls      []string
	injected   []model.Script
	highlights int
}

func newFrame(url string) *fakeFrame {
	return &fakeFrame{url: url}
}

func (f *fakeFrame) URL() string   { return f.url }
func (f *fakeFrame) Proxied() bool { return f.proxied }

func (f *fakeFrame) Inject(ctx context.Context, s model.Script) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "inject")
	var err error
	if len(f.injectErrs) > 0 {
		err = f.injectErrs[0]
		f.injectErrs = f.injectErrs[1:]
	}
	if err != nil {
		return err
	}
	f.injected = append(f.injected, s)
	// 脚本先清理旧标记再写入，文档中始终只保留一个
	f.highlights = 1
	return nil
}

func (f *fakeFrame) WaitLoaded(ctx context.Context) error {
	f.record("wait")
	if f.waiting != nil {
		close(f.waiting)
	}
	if f.loaded == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-f.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFrame) PostMessage(ctx context.Context, msg Message) (Ack, error) {
	f.record("post")
	if f.ack == nil {
		<-ctx.Done()
		return Ack{}, ctx.Err()
	}
	return f.ack(msg)
}

func (f *fakeFrame) Navigate(ctx context.Context, url string, proxied bool) (Frame, error) {
	f.record("navigate " + url)
	if f.navErr != nil {
		return nil, f.navErr
	}
	if f.next == nil {
		f.next = newFrame(url)
	}
	f.next.url = url
	f.next.proxied = proxied
	return f.next, nil
}

func (f *fakeFrame) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeFrame) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeProxy struct {
	base     string
	probeErr error
	probed   int
}

func (p *fakeProxy) RewriteURL(target string) (string, error) {
	return p.base + "/proxy?url=" + target, nil
}

func (p *fakeProxy) Probe(ctx context.Context) error {
	p.probed++
	return p.probeErr
}

type fakePresenter struct {
	mu        sync.Mutex
	clipboard []model.Script
	last      model.ManualRequest
	err       error
}

func (p *fakePresenter) Present(ctx context.Context, req model.ManualRequest) (model.ManualInstructions, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = req
	if p.err != nil {
		return model.ManualInstructions{TargetURL: req.TargetURL, Script: req.Script}, p.err
	}
	p.clipboard = append(p.clipboard, req.Script)
	return model.ManualInstructions{Copied: true, TargetURL: req.TargetURL, Script: req.Script, Steps: []string{"paste"}}, nil
}

func (p *fakePresenter) Last() model.ManualRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *fakePresenter) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clipboard)
}
