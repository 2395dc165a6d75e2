package model

import "time"

type RequestID string
type TargetID string

// OriginClass 目标页面相对宿主的来源分类
type OriginClass string

const (
	OriginLocal  OriginClass = "local"
	OriginRemote OriginClass = "remote"
)

// Strategy 脚本投递策略
type Strategy string

const (
	StrategyDirectAccess         Strategy = "direct_access"
	StrategyCrossDocumentMessage Strategy = "cross_document_message"
	StrategyProxyRetry           Strategy = "proxy_retry"
	StrategyManual               Strategy = "manual"
)

// AttemptOutcome 单次投递尝试的结果
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeBlocked AttemptOutcome = "blocked"
	OutcomeFailed  AttemptOutcome = "failed"
)

// Script 自包含的校验脚本，每次请求重新生成
type Script string

func (s Script) String() string { return string(s) }

// VerificationRequest 一次用户发起的定位校验
type VerificationRequest struct {
	TargetURL string `json:"targetUrl" validate:"required"`
	Locator   string `json:"locator" validate:"required"`
	Validated bool   `json:"validated"`
	// AllowProxy 操作者已明确同意将嵌入内容切换到代理地址
	AllowProxy bool `json:"allowProxy"`
}

// DeliveryAttempt 投递尝试记录
type DeliveryAttempt struct {
	Strategy  Strategy       `json:"strategy"`
	Outcome   AttemptOutcome `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// ManualRequest 手动兜底的输入：目标、脚本与此前投递得到的来源分类和代理建议
type ManualRequest struct {
	TargetURL  string
	Script     Script
	Origin     OriginClass
	ProxyOffer *ProxyOffer
}

// ManualInstructions 手动执行指引
type ManualInstructions struct {
	Copied    bool        `json:"copied"`
	Opened    bool        `json:"opened"`
	TargetURL string      `json:"targetUrl"`
	Origin    OriginClass `json:"origin,omitempty"`
	ProxyURL  string      `json:"proxyUrl,omitempty"`
	Steps     []string    `json:"steps"`
	Script    Script      `json:"script"`
}

// ProxyOffer 建议操作者切换到代理地址
type ProxyOffer struct {
	ProxyURL string `json:"proxyUrl"`
	Reason   string `json:"reason"`
}

// DeliveryOutcome 一次校验的投递结果
type DeliveryOutcome struct {
	RequestID    RequestID           `json:"requestId"`
	Origin       OriginClass         `json:"origin"`
	Succeeded    bool                `json:"succeeded"`
	StrategyUsed *Strategy           `json:"strategyUsed"`
	Attempts     []DeliveryAttempt   `json:"attempts"`
	ProxyOffer   *ProxyOffer         `json:"proxyOffer,omitempty"`
	Manual       *ManualInstructions `json:"manual,omitempty"`
	Cancelled    bool                `json:"cancelled,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// LastAttempt 返回最后一次尝试
func (o *DeliveryOutcome) LastAttempt() (DeliveryAttempt, bool) {
	if len(o.Attempts) == 0 {
		return DeliveryAttempt{}, false
	}
	return o.Attempts[len(o.Attempts)-1], true
}

// Event 投递过程事件
type Event struct {
	Type      string         `json:"type"`
	Request   RequestID      `json:"requestId"`
	Target    TargetID       `json:"target"`
	Strategy  Strategy       `json:"strategy,omitempty"`
	Outcome   AttemptOutcome `json:"outcome,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
