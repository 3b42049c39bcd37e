package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"go.uber.org/zap"
)

// ScheduleService 工作区/模台/排检服务
type ScheduleService struct {
	repo      *repository.ScheduleRepository
	pieceRepo *repository.PieceRepository
	hub       *sse.Hub
	logger    *zap.Logger
}

// NewScheduleService 创建排检服务
func NewScheduleService(repo *repository.ScheduleRepository, pieceRepo *repository.PieceRepository, hub *sse.Hub, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{repo: repo, pieceRepo: pieceRepo, hub: hub, logger: logger}
}

// CreateWorkspaceRequest 创建工作区请求
type CreateWorkspaceRequest struct {
	ID   string `json:"id"`
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// CreateFormRequest 创建模台请求
type CreateFormRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

// ScheduleRequest 排检请求
type ScheduleRequest struct {
	WorkspaceID    string   `json:"workspaceId" binding:"required"`
	FormID         string   `json:"formId" binding:"required"`
	InspectionType string   `json:"type" binding:"required"`
	PieceIDs       []string `json:"pieceIds" binding:"required"`
}

// ResolveScope 校验 scope 的检验类型、工作区和模台
func (s *ScheduleService) ResolveScope(ctx context.Context, scope entity.Scope) error {
	if !entity.ValidInspectionType(scope.InspectionType) {
		return fmt.Errorf("%w: unknown inspection type %q", ErrInvalidInput, scope.InspectionType)
	}
	if scope.WorkspaceID == "" || scope.FormID == "" {
		return fmt.Errorf("%w: workspaceId and formId are required", ErrInvalidInput)
	}
	if _, err := s.repo.FindWorkspace(ctx, scope.WorkspaceID); err != nil {
		return fmt.Errorf("workspace %s: %w", scope.WorkspaceID, err)
	}
	if _, err := s.repo.FindForm(ctx, scope.WorkspaceID, scope.FormID); err != nil {
		return fmt.Errorf("form %s: %w", scope.FormID, err)
	}
	return nil
}

// CreateWorkspace 创建工作区
func (s *ScheduleService) CreateWorkspace(ctx context.Context, req *CreateWorkspaceRequest) (*entity.Workspace, error) {
	ws := &entity.Workspace{
		ID:   req.ID,
		Code: strings.TrimSpace(req.Code),
		Name: req.Name,
	}
	if ws.ID == "" {
		ws.ID = newID()
	}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// CreateForm 在工作区下创建模台
func (s *ScheduleService) CreateForm(ctx context.Context, workspaceID string, req *CreateFormRequest) (*entity.Form, error) {
	if _, err := s.repo.FindWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	form := &entity.Form{
		ID:          req.ID,
		WorkspaceID: workspaceID,
		Name:        req.Name,
	}
	if form.ID == "" {
		form.ID = newID()
	}
	if err := s.repo.CreateForm(ctx, form); err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	return form, nil
}

// Schedule 将构件排入 scope，已排程的忽略，返回请求中有效的构件数
func (s *ScheduleService) Schedule(ctx context.Context, req *ScheduleRequest) (int, error) {
	scope := entity.Scope{WorkspaceID: req.WorkspaceID, FormID: req.FormID, InspectionType: req.InspectionType}
	if err := s.ResolveScope(ctx, scope); err != nil {
		return 0, err
	}

	ids := dedupe(req.PieceIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no pieces to schedule", ErrInvalidInput)
	}
	pieces, err := s.pieceRepo.FindByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("find pieces: %w", err)
	}
	if len(pieces) != len(ids) {
		return 0, fmt.Errorf("%w: %d of %d pieces do not exist", ErrInvalidInput, len(ids)-len(pieces), len(ids))
	}

	seq, err := s.repo.NextSequence(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	entries := make([]entity.ScheduleEntry, 0, len(pieces))
	for i, p := range pieces {
		entries = append(entries, entity.ScheduleEntry{
			ID:             newID(),
			WorkspaceID:    scope.WorkspaceID,
			FormID:         scope.FormID,
			InspectionType: scope.InspectionType,
			PieceID:        p.ID,
			Sequence:       seq + i,
		})
	}
	if err := s.repo.AddEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("add schedule: %w", err)
	}

	s.logger.Info("pieces scheduled", zap.String("scope", scope.Key()), zap.Int("count", len(entries)))
	if s.hub != nil {
		s.hub.PublishJSON(scope.Key(), "schedule_update", payload{"scope": scope, "piece_ids": ids})
	}
	return len(entries), nil
}

// payload SSE 事件载荷
type payload = map[string]interface{}

// dedupe 去重并保持顺序，忽略空ID
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
