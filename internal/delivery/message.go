package delivery

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"locatorcheck/pkg/model"
)

// 跨文档消息类型区分字段
const (
	MessageTypeVerify = "locatorcheck:verify"
	MessageTypeAck    = "locatorcheck:ack"
)

// Message 投递给协作页面的校验消息
type Message struct {
	Type   string
	ID     string
	Script model.Script
}

// NewMessage 创建带关联 ID 的校验消息
func NewMessage(s model.Script) Message {
	return Message{Type: MessageTypeVerify, ID: uuid.NewString(), Script: s}
}

// Encode 编码为 JSON
func (m Message) Encode() (string, error) {
	out, err := sjson.Set("", "type", m.Type)
	if err != nil {
		return "", err
	}
	if out, err = sjson.Set(out, "id", m.ID); err != nil {
		return "", err
	}
	return sjson.Set(out, "script", string(m.Script))
}

// Ack 协作页面的确认消息
type Ack struct {
	Type   string
	ID     string
	Status string
	Error  string
}

// DecodeAck 解析确认消息
func DecodeAck(raw []byte) (Ack, error) {
	if !gjson.ValidBytes(raw) {
		return Ack{}, fmt.Errorf("invalid ack payload")
	}
	r := gjson.ParseBytes(raw)
	a := Ack{
		Type:   r.Get("type").String(),
		ID:     r.Get("id").String(),
		Status: r.Get("status").String(),
		Error:  r.Get("error").String(),
	}
	if a.Type != MessageTypeAck {
		return Ack{}, fmt.Errorf("unexpected message type %q", a.Type)
	}
	return a, nil
}

// Acknowledges 判断确认是否对应该消息
func (a Ack) Acknowledges(m Message) bool {
	return a.Type == MessageTypeAck && a.ID == m.ID
}
