package handler

import (
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/gin-gonic/gin"
)

// InspectionHandler 质检完成与报表处理器
type InspectionHandler struct {
	svc    *service.InspectionService
	report *service.ReportService
}

func NewInspectionHandler(svc *service.InspectionService, report *service.ReportService) *InspectionHandler {
	return &InspectionHandler{svc: svc, report: report}
}

// Complete POST /qc/complete
func (h *InspectionHandler) Complete(c *gin.Context) {
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if req.PieceID == "" {
		BadRequest(c, "pieceId is required")
		return
	}
	h.complete(c, &req)
}

// CompleteByPath POST /qc/inspections/:pieceId/complete
func (h *InspectionHandler) CompleteByPath(c *gin.Context) {
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.PieceID = c.Param("pieceId")
	h.complete(c, &req)
}

func (h *InspectionHandler) complete(c *gin.Context, req *service.CompleteRequest) {
	piece, err := h.svc.Complete(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, piece)
}

// Report GET /qc/reports/inspections?workspaceId=&formId=&type=
func (h *InspectionHandler) Report(c *gin.Context) {
	f, filename, err := h.report.ExportInspections(c.Request.Context(), GetScope(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
