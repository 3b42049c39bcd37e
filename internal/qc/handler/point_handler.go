package handler

import (
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/gin-gonic/gin"
)

// PointHandler 标注点处理器
type PointHandler struct {
	svc *service.PointService
}

func NewPointHandler(svc *service.PointService) *PointHandler {
	return &PointHandler{svc: svc}
}

// Create POST /qc/points
func (h *PointHandler) Create(c *gin.Context) {
	var req service.CreatePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	point, err := h.svc.Create(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, point)
}

// List GET /qc/points?pieceId=&page=
func (h *PointHandler) List(c *gin.Context) {
	points, err := h.svc.List(c.Request.Context(),
		queryAny(c, "pieceId", "piece_id"),
		queryAny(c, "page", "pageId", "page_id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": points})
}
