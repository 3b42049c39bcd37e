package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/bitfantasy/precast/internal/shared/feishu"
	"go.uber.org/zap"
)

// InspectionService 构件质检完成服务
type InspectionService struct {
	repo      *repository.InspectionRepository
	pieceRepo *repository.PieceRepository
	pointRepo *repository.PointRepository
	hub       *sse.Hub
	logger    *zap.Logger

	notifier       Notifier
	chatID         string
	notifyApproved bool
}

// NewInspectionService 创建质检服务
func NewInspectionService(
	repo *repository.InspectionRepository,
	pieceRepo *repository.PieceRepository,
	pointRepo *repository.PointRepository,
	hub *sse.Hub,
	logger *zap.Logger,
) *InspectionService {
	return &InspectionService{repo: repo, pieceRepo: pieceRepo, pointRepo: pointRepo, hub: hub, logger: logger}
}

// SetNotifier 设置结果通知（默认只通知驳回）
func (s *InspectionService) SetNotifier(n Notifier, chatID string, notifyApproved bool) {
	s.notifier = n
	s.chatID = chatID
	s.notifyApproved = notifyApproved
}

// CompleteRequest 完成质检请求
// 兼容 {approved: bool} 和 {status: "APPROVED"|"REJECTED"} 两种写法
type CompleteRequest struct {
	PieceID        string `json:"pieceId"`
	InspectionType string `json:"type"`
	Approved       *bool  `json:"approved"`
	Status         string `json:"status"`
	Notes          string `json:"notes"`
}

// Decision 解析请求中的检验结论
func (r *CompleteRequest) Decision() (string, error) {
	if r.Status != "" {
		status := strings.ToUpper(r.Status)
		if status != entity.InspectionStatusApproved && status != entity.InspectionStatusRejected {
			return "", fmt.Errorf("%w: status must be APPROVED or REJECTED", ErrInvalidInput)
		}
		return status, nil
	}
	if r.Approved == nil {
		return "", fmt.Errorf("%w: approved or status is required", ErrInvalidInput)
	}
	if *r.Approved {
		return entity.InspectionStatusApproved, nil
	}
	return entity.InspectionStatusRejected, nil
}

// promotion 通过后的构件状态推进规则
type promotion struct {
	to   string
	from []string
}

var approvalPromotions = map[string]promotion{
	entity.InspectionTypePrePour: {
		to:   entity.PieceStatusReadyForPour,
		from: []string{entity.PieceStatusInProduction},
	},
	entity.InspectionTypePostPour: {
		to:   entity.PieceStatusReadyForYard,
		from: []string{entity.PieceStatusInProduction, entity.PieceStatusReadyForPour},
	},
}

// Complete 记录检验结论并推进构件状态
// 浇筑后检验需浇筑前检验已通过；同一构件同一检验类型只能完成一次
func (s *InspectionService) Complete(ctx context.Context, req *CompleteRequest, userID string) (*entity.Piece, error) {
	if !entity.ValidInspectionType(req.InspectionType) {
		return nil, fmt.Errorf("%w: unknown inspection type %q", ErrInvalidInput, req.InspectionType)
	}
	decision, err := req.Decision()
	if err != nil {
		return nil, err
	}

	piece, err := s.pieceRepo.FindByID(ctx, req.PieceID)
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", req.PieceID, err)
	}
	if current := piece.InspectionStatus(req.InspectionType); current != entity.InspectionStatusPending {
		return nil, fmt.Errorf("%w: %s %s is %s", ErrAlreadyCompleted, piece.Mark, req.InspectionType, current)
	}
	if req.InspectionType == entity.InspectionTypePostPour &&
		piece.InspectionStatus(entity.InspectionTypePrePour) != entity.InspectionStatusApproved {
		return nil, fmt.Errorf("%w: %s", ErrGateNotPassed, piece.Mark)
	}

	now := time.Now()
	ins := &entity.PieceInspection{
		ID:             newID(),
		PieceID:        piece.ID,
		InspectionType: req.InspectionType,
		Status:         decision,
		InspectorID:    userID,
		CompletedAt:    &now,
		Notes:          req.Notes,
	}

	var promo promotion
	if decision == entity.InspectionStatusApproved {
		promo = approvalPromotions[req.InspectionType]
	}
	if err := s.repo.Complete(ctx, ins, promo.to, promo.from); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s %s", ErrAlreadyCompleted, piece.Mark, req.InspectionType)
		}
		return nil, fmt.Errorf("complete inspection: %w", err)
	}

	updated, err := s.pieceRepo.FindByID(ctx, piece.ID)
	if err != nil {
		return nil, fmt.Errorf("reload piece: %w", err)
	}

	s.logger.Info("inspection completed",
		zap.String("piece_id", updated.ID),
		zap.String("type", req.InspectionType),
		zap.String("decision", decision),
		zap.String("piece_status", updated.Status),
		zap.String("user_id", userID))

	if s.hub != nil {
		s.hub.PublishJSON("", "inspection_completed", payload{
			"piece_id":     updated.ID,
			"type":         req.InspectionType,
			"status":       decision,
			"piece_status": updated.Status,
		})
	}
	s.notify(updated, ins)
	return updated, nil
}

// notify 异步发送飞书质检结果卡片
func (s *InspectionService) notify(piece *entity.Piece, ins *entity.PieceInspection) {
	if s.notifier == nil || s.chatID == "" {
		return
	}
	if ins.Status == entity.InspectionStatusApproved && !s.notifyApproved {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		open := 0
		if counts, err := s.pointRepo.CountOpenByPieces(ctx, []string{piece.ID}, ins.InspectionType); err == nil {
			open = counts[piece.ID]
		}
		card := feishu.NewInspectionResultCard(feishu.InspectionResult{
			PieceMark:      piece.Mark,
			InspectionType: ins.InspectionType,
			Status:         ins.Status,
			Inspector:      ins.InspectorID,
			OpenPoints:     open,
			Notes:          ins.Notes,
		})
		if err := s.notifier.SendCard(ctx, s.chatID, card); err != nil {
			s.logger.Warn("send inspection card failed", zap.String("piece_id", piece.ID), zap.Error(err))
		}
	}()
}
