package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// SendCard 向群聊发送质检卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	token, err := c.appToken(ctx)
	if err != nil {
		return err
	}
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}
	msg := map[string]string{
		"receive_id": chatID,
		"msg_type":   "interactive",
		"content":    string(content),
	}
	if err := c.post(ctx, messagePath+"?receive_id_type=chat_id", token, msg, nil); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}
	return nil
}

// InspectionResult 质检结果卡片内容
type InspectionResult struct {
	PieceMark      string // 构件编号
	InspectionType string // PRE_POUR / POST_POUR
	Status         string // APPROVED / REJECTED
	Inspector      string
	OpenPoints     int // 未关闭的标注点数
	Notes          string
}

var inspectionTypeNames = map[string]string{
	"PRE_POUR":  "浇筑前检验",
	"POST_POUR": "浇筑后检验",
}

// NewInspectionResultCard 创建构件质检结果通知卡片
// 驳回使用红色模板，通过使用绿色模板
func NewInspectionResultCard(r InspectionResult) InteractiveCard {
	template, emoji, result := "green", "✅", "通过"
	if r.Status != "APPROVED" {
		template, emoji, result = "red", "❌", "驳回"
	}
	typeName := inspectionTypeNames[r.InspectionType]
	if typeName == "" {
		typeName = r.InspectionType
	}

	elements := []CardElement{
		{
			Tag: "div",
			Fields: []CardField{
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**构件编号**\n%s", r.PieceMark)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**检验类型**\n%s", typeName)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**检验结果**\n%s %s", emoji, result)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**检验员**\n%s", r.Inspector)}},
			},
		},
	}
	if r.OpenPoints > 0 {
		elements = append(elements, CardElement{
			Tag:  "div",
			Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**未关闭标注点**\n%d 处", r.OpenPoints)},
		})
	}

	// 添加检验备注（如果有）
	if r.Notes != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**备注**\n%s", r.Notes)},
			},
		)
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "🏗 构件质检结果通知"},
			Template: template,
		},
		Elements: elements,
	}
}
