package api

import (
	"context"

	"locatorcheck/internal/logger"
	"locatorcheck/internal/service"
	"locatorcheck/pkg/model"
)

// Service 服务接口
type Service interface {
	// RequestVerification 校验定位表达式，返回投递结果
	RequestVerification(ctx context.Context, req model.VerificationRequest) (model.DeliveryOutcome, error)

	// Script 生成校验脚本
	Script(locator string) (model.Script, error)

	// Strategies 投递策略优先级
	Strategies() []model.Strategy

	// SubscribeEvents 订阅事件
	SubscribeEvents() (<-chan model.Event, func())

	// Close 关闭服务
	Close() error
}

// Options 服务选项
type Options = service.Config

// NewService 创建并返回服务接口实现
func NewService(opt Options, l logger.Logger) Service {
	if opt.Logger == nil {
		opt.Logger = l
	}
	return service.New(opt)
}
