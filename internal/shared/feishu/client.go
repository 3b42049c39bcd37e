package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultBaseURL 飞书开放平台地址
const DefaultBaseURL = "https://open.feishu.cn"

const (
	tokenPath   = "/open-apis/auth/v3/app_access_token/internal"
	messagePath = "/open-apis/im/v1/messages"

	// token 在到期前这么久就视为失效
	tokenSkew = time.Minute
)

// FeishuClient 飞书机器人客户端，只负责把质检卡片推送到群聊
type FeishuClient struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client

	tokens  *gocache.Cache
	refresh sync.Mutex
}

// NewClient 创建飞书客户端
func NewClient(appID, appSecret string) *FeishuClient {
	return &FeishuClient{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// SetBaseURL 替换开放平台地址（私有化部署或测试）
func (c *FeishuClient) SetBaseURL(url string) {
	c.baseURL = url
}

// apiError 飞书返回的非零错误码
type apiError struct {
	Code int
	Msg  string
	Path string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("飞书API错误[%d]: %s (path=%s)", e.Code, e.Msg, e.Path)
}

// appToken 返回缓存的 app_access_token，过期后只有一个 goroutine 去刷新
func (c *FeishuClient) appToken(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(c.appID); ok {
		return tok.(string), nil
	}

	c.refresh.Lock()
	defer c.refresh.Unlock()
	if tok, ok := c.tokens.Get(c.appID); ok {
		return tok.(string), nil
	}

	var out struct {
		AppAccessToken string `json:"app_access_token"`
		Expire         int    `json:"expire"`
	}
	creds := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	if err := c.post(ctx, tokenPath, "", creds, &out); err != nil {
		return "", fmt.Errorf("获取访问令牌失败: %w", err)
	}
	if ttl := time.Duration(out.Expire)*time.Second - tokenSkew; ttl > 0 {
		c.tokens.Set(c.appID, out.AppAccessToken, ttl)
	}
	return out.AppAccessToken, nil
}

// post 发送 JSON 请求；token 为空时不带 Authorization 头
// 飞书无论成败都返回 {code, msg}，code 非零即失败
func (c *FeishuClient) post(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}
	var status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("解析响应失败 (HTTP %d): %w", resp.StatusCode, err)
	}
	if status.Code != 0 {
		return &apiError{Code: status.Code, Msg: status.Msg, Path: path}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
