package repository

import (
	"context"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleRepository 工作区/模台/排检仓库
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindWorkspace 根据ID查找工作区
func (r *ScheduleRepository) FindWorkspace(ctx context.Context, id string) (*entity.Workspace, error) {
	var ws entity.Workspace
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ws).Error; err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

// FindForm 查找工作区下的模台
func (r *ScheduleRepository) FindForm(ctx context.Context, workspaceID, formID string) (*entity.Form, error) {
	var form entity.Form
	err := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", formID, workspaceID).
		First(&form).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &form, nil
}

// CreateWorkspace 创建工作区
func (r *ScheduleRepository) CreateWorkspace(ctx context.Context, ws *entity.Workspace) error {
	return r.db.WithContext(ctx).Create(ws).Error
}

// CreateForm 创建模台
func (r *ScheduleRepository) CreateForm(ctx context.Context, form *entity.Form) error {
	return r.db.WithContext(ctx).Create(form).Error
}

// ListPieceIDs 获取 scope 下排程的构件ID（按排程顺序）
func (r *ScheduleRepository) ListPieceIDs(ctx context.Context, scope entity.Scope) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.ScheduleEntry{}).
		Where("workspace_id = ? AND form_id = ? AND inspection_type = ?",
			scope.WorkspaceID, scope.FormID, scope.InspectionType).
		Order("sequence ASC, created_at ASC").
		Pluck("piece_id", &ids).Error
	return ids, err
}

// NextSequence 获取 scope 下一个排程序号
func (r *ScheduleRepository) NextSequence(ctx context.Context, scope entity.Scope) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&entity.ScheduleEntry{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("workspace_id = ? AND form_id = ? AND inspection_type = ?",
			scope.WorkspaceID, scope.FormID, scope.InspectionType).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// AddEntries 添加排程，已排程的构件忽略
func (r *ScheduleRepository) AddEntries(ctx context.Context, entries []entity.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries).Error
}
