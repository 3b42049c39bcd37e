package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/gin-gonic/gin"
)

// PieceHandler 构件处理器
type PieceHandler struct {
	svc           *service.PieceService
	drawing       *service.DrawingService
	recommend     *service.RecommendationService
	maxUploadSize int64
}

func NewPieceHandler(svc *service.PieceService, drawing *service.DrawingService, recommend *service.RecommendationService, maxUploadSize int64) *PieceHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 20 << 20
	}
	return &PieceHandler{svc: svc, drawing: drawing, recommend: recommend, maxUploadSize: maxUploadSize}
}

// List GET /qc/pieces?workspaceId=&formId=&type=
func (h *PieceHandler) List(c *gin.Context) {
	pieces, err := h.svc.ListForScope(c.Request.Context(), GetScope(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": pieces, "total": len(pieces)})
}

// Get GET /qc/pieces/:id
func (h *PieceHandler) Get(c *gin.Context) {
	piece, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, piece)
}

// Create POST /qc/pieces
func (h *PieceHandler) Create(c *gin.Context) {
	var req service.CreatePieceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	piece, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, piece)
}

// Import POST /qc/pieces/import (multipart file=CSV)
func (h *PieceHandler) Import(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传CSV文件")
		return
	}
	defer file.Close()

	result, err := h.svc.ImportCSV(c.Request.Context(), io.LimitReader(file, h.maxUploadSize))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// UpdateStatusRequest 推进构件状态请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus PUT /qc/pieces/:id/status
func (h *PieceHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	piece, err := h.svc.AdvanceStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, piece)
}

// Eligible GET /qc/pieces/eligible?stage=pour|yard|shipping
func (h *PieceHandler) Eligible(c *gin.Context) {
	pieces, err := h.svc.Eligible(c.Request.Context(), c.Query("stage"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": pieces, "total": len(pieces)})
}

// AddPage POST /qc/pieces/:id/pages (multipart file 或 JSON image_url)
func (h *PieceHandler) AddPage(c *gin.Context) {
	var req service.AddPageRequest
	var upload *service.PageUpload

	if c.ContentType() == "multipart/form-data" {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
		if err := c.ShouldBind(&req); err != nil {
			BadRequest(c, "参数错误: "+err.Error())
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			BadRequest(c, "请上传图纸文件")
			return
		}
		file, err := fh.Open()
		if err != nil {
			BadRequest(c, "读取文件失败: "+err.Error())
			return
		}
		defer file.Close()
		upload = &service.PageUpload{
			Reader:      file,
			FileName:    fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	page, err := h.drawing.AddPage(c.Request.Context(), c.Param("id"), &req, upload)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, page)
}

// Image GET /qc/pages/:id/image
func (h *PieceHandler) Image(c *gin.Context) {
	rc, page, err := h.drawing.OpenImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "private, max-age=3600")
	c.Header("X-Page-Number", strconv.Itoa(page.PageNumber))
	c.DataFromReader(http.StatusOK, -1, contentTypeOf(page.ObjectKey), rc, nil)
}

// Recommendation GET /qc/pieces/:id/recommendation?type=
func (h *PieceHandler) Recommendation(c *gin.Context) {
	inspectionType := queryAny(c, "type", "inspection_type")
	if inspectionType == "" {
		inspectionType = entity.InspectionTypePrePour
	}
	rec, err := h.recommend.Recommend(c.Request.Context(), c.Param("id"), inspectionType)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, rec)
}

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

func contentTypeOf(key string) string {
	for i := len(key) - 1; i >= 0 && key[i] != '/'; i-- {
		if key[i] == '.' {
			if ct, ok := imageContentTypes[key[i:]]; ok {
				return ct
			}
			break
		}
	}
	return "application/octet-stream"
}
