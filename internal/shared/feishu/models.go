package feishu

// InteractiveCard 飞书交互式消息卡片
type InteractiveCard struct {
	Config   *CardConfig   `json:"config,omitempty"`
	Header   *CardHeader   `json:"header,omitempty"`
	Elements []CardElement `json:"elements,omitempty"`
}

// CardConfig 卡片配置
type CardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

// CardHeader 卡片标题，Template 为标题颜色：green/red/orange 等
type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template,omitempty"`
}

// CardText 卡片文本，Tag 为 plain_text 或 lark_md
type CardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// CardElement 卡片元素，质检卡片只用到 div 和 hr
type CardElement struct {
	Tag    string      `json:"tag"`
	Text   *CardText   `json:"text,omitempty"`
	Fields []CardField `json:"fields,omitempty"`
}

// CardField div 中的字段，IsShort 的字段两两并排
type CardField struct {
	IsShort bool     `json:"is_short"`
	Text    CardText `json:"text"`
}
