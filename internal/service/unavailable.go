package service

import (
	"context"

	"locatorcheck/internal/delivery"
	"locatorcheck/pkg/model"
)

// unavailable 宿主页面不可达时的嵌入文档句柄
type unavailable struct {
	url string
	err error
}

func (u unavailable) URL() string   { return u.url }
func (u unavailable) Proxied() bool { return false }

func (u unavailable) Inject(context.Context, model.Script) error { return u.err }
func (u unavailable) WaitLoaded(context.Context) error           { return u.err }

func (u unavailable) PostMessage(context.Context, delivery.Message) (delivery.Ack, error) {
	return delivery.Ack{}, u.err
}

func (u unavailable) Navigate(context.Context, string, bool) (delivery.Frame, error) {
	return nil, u.err
}
