package handler

import (
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/gin-gonic/gin"
)

// ScheduleHandler 工作区/模台/排检处理器
type ScheduleHandler struct {
	svc *service.ScheduleService
}

func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{svc: svc}
}

// CreateWorkspace POST /qc/workspaces
func (h *ScheduleHandler) CreateWorkspace(c *gin.Context) {
	var req service.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	ws, err := h.svc.CreateWorkspace(c.Request.Context(), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, ws)
}

// CreateForm POST /qc/workspaces/:id/forms
func (h *ScheduleHandler) CreateForm(c *gin.Context) {
	var req service.CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	form, err := h.svc.CreateForm(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, form)
}

// Schedule POST /qc/schedule
func (h *ScheduleHandler) Schedule(c *gin.Context) {
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	n, err := h.svc.Schedule(c.Request.Context(), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"scheduled": n})
}
