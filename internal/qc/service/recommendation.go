package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
)

// 建议结论
const (
	SuggestApprove = "APPROVE"
	SuggestReview  = "REVIEW"
	SuggestReject  = "REJECT"
	SuggestBlocked = "BLOCKED"
)

// Recommendation 质检建议
type Recommendation struct {
	PieceID        string   `json:"piece_id"`
	InspectionType string   `json:"type"`
	Suggestion     string   `json:"suggestion"`
	Confidence     float64  `json:"confidence"`
	Reasons        []string `json:"reasons"`
}

// RecommendationInput 生成建议所需的构件信息
type RecommendationInput struct {
	Piece          *entity.Piece
	InspectionType string
	OpenPoints     int
}

// RecommendationProvider 质检建议能力，可替换为模型服务
type RecommendationProvider interface {
	Recommend(ctx context.Context, in RecommendationInput) (*Recommendation, error)
}

// RuleRecommender 基于标注点数量和检验顺序的默认建议
type RuleRecommender struct{}

func (RuleRecommender) Recommend(_ context.Context, in RecommendationInput) (*Recommendation, error) {
	rec := &Recommendation{
		PieceID:        in.Piece.ID,
		InspectionType: in.InspectionType,
		Reasons:        []string{},
	}
	if status := in.Piece.InspectionStatus(in.InspectionType); status != entity.InspectionStatusPending {
		rec.Suggestion = SuggestBlocked
		rec.Confidence = 1
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("已完成检验: %s", status))
		return rec, nil
	}
	if in.InspectionType == entity.InspectionTypePostPour &&
		in.Piece.InspectionStatus(entity.InspectionTypePrePour) != entity.InspectionStatusApproved {
		rec.Suggestion = SuggestBlocked
		rec.Confidence = 1
		rec.Reasons = append(rec.Reasons, "浇筑前检验未通过")
		return rec, nil
	}
	if len(in.Piece.DrawingPages) == 0 {
		rec.Reasons = append(rec.Reasons, "构件无图纸页")
	}

	switch {
	case in.OpenPoints == 0:
		rec.Suggestion = SuggestApprove
		rec.Confidence = 0.8
		rec.Reasons = append(rec.Reasons, "无未关闭标注点")
	case in.OpenPoints < 3:
		rec.Suggestion = SuggestReview
		rec.Confidence = 0.5
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d 个未关闭标注点", in.OpenPoints))
	default:
		rec.Suggestion = SuggestReject
		rec.Confidence = 0.7
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d 个未关闭标注点", in.OpenPoints))
	}
	return rec, nil
}

// RecommendationService 质检建议服务
type RecommendationService struct {
	pieceRepo *repository.PieceRepository
	pointRepo *repository.PointRepository
	provider  RecommendationProvider
}

// NewRecommendationService 创建建议服务
func NewRecommendationService(pieceRepo *repository.PieceRepository, pointRepo *repository.PointRepository, provider RecommendationProvider) *RecommendationService {
	return &RecommendationService{pieceRepo: pieceRepo, pointRepo: pointRepo, provider: provider}
}

// SetProvider 替换建议能力
func (s *RecommendationService) SetProvider(p RecommendationProvider) {
	s.provider = p
}

// Recommend 为构件生成质检建议
func (s *RecommendationService) Recommend(ctx context.Context, pieceID, inspectionType string) (*Recommendation, error) {
	if !entity.ValidInspectionType(inspectionType) {
		return nil, fmt.Errorf("%w: unknown inspection type %q", ErrInvalidInput, inspectionType)
	}
	piece, err := s.pieceRepo.FindByID(ctx, pieceID)
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", pieceID, err)
	}
	counts, err := s.pointRepo.CountOpenByPieces(ctx, []string{pieceID}, inspectionType)
	if err != nil {
		return nil, fmt.Errorf("count points: %w", err)
	}
	return s.provider.Recommend(ctx, RecommendationInput{
		Piece:          piece,
		InspectionType: inspectionType,
		OpenPoints:     counts[pieceID],
	})
}
