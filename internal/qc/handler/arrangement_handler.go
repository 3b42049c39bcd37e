package handler

import (
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/gin-gonic/gin"
)

// ArrangementHandler 自定义排序处理器
type ArrangementHandler struct {
	svc *service.ArrangementService
}

func NewArrangementHandler(svc *service.ArrangementService) *ArrangementHandler {
	return &ArrangementHandler{svc: svc}
}

// Get GET /qc/arrangement?workspaceId=&formId=&type=
func (h *ArrangementHandler) Get(c *gin.Context) {
	ids, err := h.svc.Get(c.Request.Context(), GetScope(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"arrangement": ids})
}

// Save POST /qc/arrangement
func (h *ArrangementHandler) Save(c *gin.Context) {
	var req service.SaveArrangementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if req.Arrangement == nil {
		BadRequest(c, "arrangement is required")
		return
	}
	if err := h.svc.Save(c.Request.Context(), &req, GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"arrangement": req.Arrangement})
}

// Queue GET /qc/queue?workspaceId=&formId=&type=
func (h *ArrangementHandler) Queue(c *gin.Context) {
	pieces, err := h.svc.Queue(c.Request.Context(), GetScope(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": pieces, "total": len(pieces)})
}
