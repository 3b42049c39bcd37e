package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfantasy/precast/internal/qc/cache"
	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/bitfantasy/precast/internal/workflow"
	"go.uber.org/zap"
)

// ArrangementService 自定义排序服务
type ArrangementService struct {
	repo         *repository.ArrangementRepository
	scheduleRepo *repository.ScheduleRepository
	schedule     *ScheduleService
	pieces       *PieceService
	cache        cache.ArrangementCache
	hub          *sse.Hub
	logger       *zap.Logger

	saving sync.Map // scope key -> *sync.Mutex
}

// NewArrangementService 创建排序服务
func NewArrangementService(
	repo *repository.ArrangementRepository,
	scheduleRepo *repository.ScheduleRepository,
	schedule *ScheduleService,
	pieces *PieceService,
	c cache.ArrangementCache,
	hub *sse.Hub,
	logger *zap.Logger,
) *ArrangementService {
	return &ArrangementService{
		repo:         repo,
		scheduleRepo: scheduleRepo,
		schedule:     schedule,
		pieces:       pieces,
		cache:        c,
		hub:          hub,
		logger:       logger,
	}
}

// SaveArrangementRequest 保存排序请求
type SaveArrangementRequest struct {
	WorkspaceID    string   `json:"workspaceId"`
	FormID         string   `json:"formId"`
	InspectionType string   `json:"type"`
	Arrangement    []string `json:"arrangement"`
}

// Scope 请求对应的 scope
func (r *SaveArrangementRequest) Scope() entity.Scope {
	return entity.Scope{WorkspaceID: r.WorkspaceID, FormID: r.FormID, InspectionType: r.InspectionType}
}

// Get 获取保存的排序（未保存时为空数组）
func (s *ArrangementService) Get(ctx context.Context, scope entity.Scope) ([]string, error) {
	if err := s.schedule.ResolveScope(ctx, scope); err != nil {
		return nil, err
	}
	return s.saved(ctx, scope)
}

func (s *ArrangementService) saved(ctx context.Context, scope entity.Scope) ([]string, error) {
	if s.cache != nil {
		if ids, ok := s.cache.Get(ctx, scope); ok {
			return ids, nil
		}
	}
	ids, err := s.repo.Get(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("get arrangement: %w", err)
	}
	if s.cache != nil {
		s.cache.Fill(ctx, scope, ids)
	}
	return ids, nil
}

// Save 整体替换 scope 的排序
// 排序中的构件必须已排程且不重复
func (s *ArrangementService) Save(ctx context.Context, req *SaveArrangementRequest, userID string) error {
	scope := req.Scope()
	if err := s.schedule.ResolveScope(ctx, scope); err != nil {
		return err
	}

	scheduled, err := s.scheduleRepo.ListPieceIDs(ctx, scope)
	if err != nil {
		return fmt.Errorf("list schedule: %w", err)
	}
	known := make(map[string]bool, len(scheduled))
	for _, id := range scheduled {
		known[id] = true
	}
	seen := make(map[string]bool, len(req.Arrangement))
	items := make([]entity.ArrangementItem, 0, len(req.Arrangement))
	for i, id := range req.Arrangement {
		if !known[id] {
			return fmt.Errorf("%w: piece %q is not scheduled for %s", ErrInvalidInput, id, scope.Key())
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate piece %q", ErrInvalidInput, id)
		}
		seen[id] = true
		items = append(items, entity.ArrangementItem{
			ID:             newID(),
			WorkspaceID:    scope.WorkspaceID,
			FormID:         scope.FormID,
			InspectionType: scope.InspectionType,
			Position:       i,
			PieceID:        id,
			SavedBy:        userID,
		})
	}

	// 同一 scope 的保存串行，缓存写入顺序与提交顺序一致
	mu, _ := s.saving.LoadOrStore(scope.Key(), &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if err := s.repo.Replace(ctx, scope, items); err != nil {
		return fmt.Errorf("save arrangement: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, scope, append([]string{}, req.Arrangement...))
	}

	s.logger.Info("arrangement saved",
		zap.String("scope", scope.Key()), zap.Int("count", len(items)), zap.String("user_id", userID))
	if s.hub != nil {
		s.hub.PublishJSON(scope.Key(), "arrangement_update", payload{"scope": scope, "arrangement": req.Arrangement})
	}
	return nil
}

// Queue 返回按保存排序合并后的构件队列
func (s *ArrangementService) Queue(ctx context.Context, scope entity.Scope) ([]entity.Piece, error) {
	pieces, err := s.pieces.ListForScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	saved, err := s.saved(ctx, scope)
	if err != nil {
		return nil, err
	}
	return workflow.MergeArrangement(pieces, saved), nil
}
