package handler

import (
	"errors"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Schedule    *ScheduleHandler
	Piece       *PieceHandler
	Arrangement *ArrangementHandler
	Point       *PointHandler
	Inspection  *InspectionHandler
	SSE         *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, maxUploadSize int64) *Handlers {
	return &Handlers{
		Schedule:    NewScheduleHandler(svc.Schedule),
		Piece:       NewPieceHandler(svc.Piece, svc.Drawing, svc.Recommendation, maxUploadSize),
		Arrangement: NewArrangementHandler(svc.Arrangement),
		Point:       NewPointHandler(svc.Point),
		Inspection:  NewInspectionHandler(svc.Inspection, svc.Report),
		SSE:         NewSSEHandler(hub),
	}
}

// RegisterRoutes 注册 /qc 路由；admin 中间件作用于排程和构件管理接口
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, admin ...gin.HandlerFunc) {
	qc := api.Group("/qc")
	{
		// 质检工作台
		qc.GET("/pieces", h.Piece.List)
		qc.GET("/arrangement", h.Arrangement.Get)
		qc.POST("/arrangement", h.Arrangement.Save)
		qc.GET("/queue", h.Arrangement.Queue)
		qc.POST("/points", h.Point.Create)
		qc.GET("/points", h.Point.List)
		qc.POST("/complete", h.Inspection.Complete)
		qc.POST("/inspections/:pieceId/complete", h.Inspection.CompleteByPath)
		qc.GET("/reports/inspections", h.Inspection.Report)
		qc.GET("/events", h.SSE.Stream)

		// 构件
		qc.GET("/pieces/eligible", h.Piece.Eligible)
		qc.GET("/pieces/:id", h.Piece.Get)
		qc.GET("/pieces/:id/recommendation", h.Piece.Recommendation)
		qc.GET("/pages/:id/image", h.Piece.Image)
	}

	manage := qc.Group("", admin...)
	{
		manage.POST("/workspaces", h.Schedule.CreateWorkspace)
		manage.POST("/workspaces/:id/forms", h.Schedule.CreateForm)
		manage.POST("/schedule", h.Schedule.Schedule)
		manage.POST("/pieces", h.Piece.Create)
		manage.POST("/pieces/import", h.Piece.Import)
		manage.PUT("/pieces/:id/status", h.Piece.UpdateStatus)
		manage.POST("/pieces/:id/pages", h.Piece.AddPage)
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError 按服务层错误类型返回响应
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyCompleted):
		Error(c, 40901, err.Error())
	case errors.Is(err, service.ErrGateNotPassed):
		Error(c, 40902, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		Error(c, 40903, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		Error(c, 50300, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// queryAny 返回第一个非空的查询参数（兼容 camelCase 和 snake_case）
func queryAny(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

// GetScope 从查询参数获取 (workspace, form, type)
func GetScope(c *gin.Context) entity.Scope {
	return entity.Scope{
		WorkspaceID:    queryAny(c, "workspaceId", "workspace_id"),
		FormID:         queryAny(c, "formId", "form_id"),
		InspectionType: queryAny(c, "type", "inspection_type"),
	}
}
