package repository

import (
	"context"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"gorm.io/gorm"
)

// ArrangementRepository 自定义排序仓库
type ArrangementRepository struct {
	db *gorm.DB
}

func NewArrangementRepository(db *gorm.DB) *ArrangementRepository {
	return &ArrangementRepository{db: db}
}

func scopeWhere(db *gorm.DB, scope entity.Scope) *gorm.DB {
	return db.Where("workspace_id = ? AND form_id = ? AND inspection_type = ?",
		scope.WorkspaceID, scope.FormID, scope.InspectionType)
}

// Get 获取保存的排序，未保存时返回空
func (r *ArrangementRepository) Get(ctx context.Context, scope entity.Scope) ([]string, error) {
	ids := []string{}
	err := scopeWhere(r.db.WithContext(ctx).Model(&entity.ArrangementItem{}), scope).
		Order("position ASC").
		Pluck("piece_id", &ids).Error
	return ids, err
}

// Replace 整体替换 scope 的排序
func (r *ArrangementRepository) Replace(ctx context.Context, scope entity.Scope, items []entity.ArrangementItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scopeWhere(tx, scope).Delete(&entity.ArrangementItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}
