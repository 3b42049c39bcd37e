package service

import (
	"context"
	"fmt"
	"math"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"go.uber.org/zap"
)

// PointService 图纸标注点服务
type PointService struct {
	repo      *repository.PointRepository
	pieceRepo *repository.PieceRepository
	hub       *sse.Hub
	logger    *zap.Logger
}

// NewPointService 创建标注点服务
func NewPointService(repo *repository.PointRepository, pieceRepo *repository.PieceRepository, hub *sse.Hub, logger *zap.Logger) *PointService {
	return &PointService{repo: repo, pieceRepo: pieceRepo, hub: hub, logger: logger}
}

// CreatePointRequest 创建标注点请求，坐标为百分比
type CreatePointRequest struct {
	PieceID        string  `json:"pieceId" binding:"required"`
	PageID         string  `json:"page" binding:"required"`
	InspectionType string  `json:"type"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Note           string  `json:"note"`
}

func validPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// Create 创建标注点
func (s *PointService) Create(ctx context.Context, req *CreatePointRequest, userID string) (*entity.InspectionPoint, error) {
	if !validPercent(req.X) || !validPercent(req.Y) {
		return nil, fmt.Errorf("%w: coordinates must be within 0-100, got (%v, %v)", ErrInvalidInput, req.X, req.Y)
	}
	if req.InspectionType == "" {
		req.InspectionType = entity.InspectionTypePrePour
	}
	if !entity.ValidInspectionType(req.InspectionType) {
		return nil, fmt.Errorf("%w: unknown inspection type %q", ErrInvalidInput, req.InspectionType)
	}

	page, err := s.pieceRepo.FindPage(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", req.PageID, err)
	}
	if page.PieceID != req.PieceID {
		return nil, fmt.Errorf("%w: page %s does not belong to piece %s", ErrInvalidInput, req.PageID, req.PieceID)
	}

	point := &entity.InspectionPoint{
		ID:             newID(),
		PieceID:        req.PieceID,
		PageID:         req.PageID,
		InspectionType: req.InspectionType,
		X:              req.X,
		Y:              req.Y,
		Status:         entity.PointStatusOpen,
		Note:           req.Note,
		CreatedBy:      userID,
	}
	if err := s.repo.Create(ctx, point); err != nil {
		return nil, fmt.Errorf("create point: %w", err)
	}

	s.logger.Debug("inspection point created",
		zap.String("piece_id", point.PieceID), zap.String("page_id", point.PageID),
		zap.Float64("x", point.X), zap.Float64("y", point.Y))
	if s.hub != nil {
		s.hub.PublishJSON("", "point_created", point)
	}
	return point, nil
}

// List 获取某构件某图纸页的标注点
func (s *PointService) List(ctx context.Context, pieceID, pageID string) ([]entity.InspectionPoint, error) {
	if pieceID == "" || pageID == "" {
		return nil, fmt.Errorf("%w: pieceId and page are required", ErrInvalidInput)
	}
	points, err := s.repo.ListByPage(ctx, pieceID, pageID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	return points, nil
}
