package cdp

import (
	"errors"
	"fmt"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/runtime"

	"locatorcheck/pkg/model"
)

// ErrEvaluation 宿主页面执行表达式抛出异常
var ErrEvaluation = errors.New("host page evaluation failed")

// toTargetInfo 将 devtool 目标转换为中立模型
func toTargetInfo(t *devtool.Target) model.TargetInfo {
	return model.TargetInfo{
		ID:    model.TargetID(t.ID),
		Type:  string(t.Type),
		URL:   t.URL,
		Title: t.Title,
	}
}

// exceptionError 将异常详情转换为错误
func exceptionError(d *runtime.ExceptionDetails) error {
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != nil {
		msg = *d.Exception.Description
	}
	return fmt.Errorf("%w: %s (line %d, column %d)", ErrEvaluation, msg, d.LineNumber, d.ColumnNumber)
}
