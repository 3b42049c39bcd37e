package qcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/workflow"
)

// API 路径前缀
const apiPrefix = "/api/v1/qc"

var _ workflow.API = (*Client)(nil)

// Client 质检服务 REST 客户端
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithToken 设置 Bearer token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New 创建客户端，baseURL 形如 http://qc.example.com:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError 服务端返回的错误
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("qc api error [%d/%d]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("qc api error [%d]: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 responses to workflow.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return workflow.ErrNotFound
	}
	return nil
}

// envelope 统一响应；兼容 {success, error} 形式的网关错误
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
}

func scopeQuery(scope entity.Scope) url.Values {
	q := url.Values{}
	q.Set("workspaceId", scope.WorkspaceID)
	q.Set("formId", scope.FormID)
	q.Set("type", scope.InspectionType)
	return q
}

// newRequest 构造请求并附加 Authorization 头
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doRequest 执行请求并把 data 字段解析到 result（可为 nil）
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, result interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil {
			if resp.StatusCode >= 300 {
				return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
			}
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || env.Code != 0 || (env.Success != nil && !*env.Success) {
		msg := env.Message
		if env.Error != "" {
			msg = env.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if result == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// ListPieces 获取 scope 下排程的构件（排程顺序）
func (c *Client) ListPieces(ctx context.Context, scope entity.Scope) ([]entity.Piece, error) {
	var data struct {
		Items []entity.Piece `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/pieces", scopeQuery(scope), nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// Queue 获取按自定义排序合并后的检验队列
func (c *Client) Queue(ctx context.Context, scope entity.Scope) ([]entity.Piece, error) {
	var data struct {
		Items []entity.Piece `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/queue", scopeQuery(scope), nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// GetArrangement 获取已保存的排序
func (c *Client) GetArrangement(ctx context.Context, scope entity.Scope) ([]string, error) {
	var data struct {
		Arrangement []string `json:"arrangement"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/arrangement", scopeQuery(scope), nil, &data); err != nil {
		return nil, err
	}
	return data.Arrangement, nil
}

// SaveArrangement 整体替换排序
func (c *Client) SaveArrangement(ctx context.Context, scope entity.Scope, pieceIDs []string) error {
	if pieceIDs == nil {
		pieceIDs = []string{}
	}
	body := map[string]interface{}{
		"workspaceId": scope.WorkspaceID,
		"formId":      scope.FormID,
		"type":        scope.InspectionType,
		"arrangement": pieceIDs,
	}
	return c.doRequest(ctx, http.MethodPost, "/arrangement", nil, body, nil)
}

// CreatePoint 新建标注点
func (c *Client) CreatePoint(ctx context.Context, req workflow.PointRequest) (*entity.InspectionPoint, error) {
	var point entity.InspectionPoint
	if err := c.doRequest(ctx, http.MethodPost, "/points", nil, req, &point); err != nil {
		return nil, err
	}
	return &point, nil
}

// ListPoints 获取图纸页上的标注点
func (c *Client) ListPoints(ctx context.Context, pieceID, pageID string) ([]entity.InspectionPoint, error) {
	q := url.Values{}
	q.Set("pieceId", pieceID)
	q.Set("page", pageID)
	var data struct {
		Items []entity.InspectionPoint `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/points", q, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// CompleteInspection 提交检验结论，返回更新后的构件
func (c *Client) CompleteInspection(ctx context.Context, pieceID, inspectionType, decision string) (*entity.Piece, error) {
	return c.Complete(ctx, pieceID, inspectionType, decision, "")
}

// Complete 提交检验结论并附带备注
func (c *Client) Complete(ctx context.Context, pieceID, inspectionType, decision, notes string) (*entity.Piece, error) {
	body := map[string]string{
		"pieceId": pieceID,
		"type":    inspectionType,
		"status":  decision,
	}
	if notes != "" {
		body["notes"] = notes
	}
	var piece entity.Piece
	if err := c.doRequest(ctx, http.MethodPost, "/complete", nil, body, &piece); err != nil {
		return nil, err
	}
	return &piece, nil
}

// Recommendation 质检建议
type Recommendation struct {
	PieceID        string   `json:"piece_id"`
	InspectionType string   `json:"type"`
	Suggestion     string   `json:"suggestion"`
	Confidence     float64  `json:"confidence"`
	Reasons        []string `json:"reasons"`
}

// Recommend 获取构件的质检建议
func (c *Client) Recommend(ctx context.Context, pieceID, inspectionType string) (*Recommendation, error) {
	q := url.Values{}
	q.Set("type", inspectionType)
	var rec Recommendation
	if err := c.doRequest(ctx, http.MethodGet, "/pieces/"+url.PathEscape(pieceID)+"/recommendation", q, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DownloadReport 下载 scope 的检验报表 (xlsx) 写入 w
func (c *Client) DownloadReport(ctx context.Context, scope entity.Scope, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/reports/inspections", scopeQuery(scope), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env envelope
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &env) != nil || env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return 0, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return io.Copy(w, resp.Body)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, workflow.ErrNotFound)
}
