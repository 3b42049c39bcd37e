package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"gorm.io/gorm"
)

// InspectionRepository 构件检验结果仓库
type InspectionRepository struct {
	db *gorm.DB
}

func NewInspectionRepository(db *gorm.DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

// Complete 在事务中写入检验结果并推进构件状态
// 只有待检记录会被更新；已有结论（含并发提交）时返回 ErrConflict
// 仅当构件当前状态在 promoteFrom 中时才更新为 promoteTo；promoteFrom 为空时不修改
func (r *InspectionRepository) Complete(ctx context.Context, ins *entity.PieceInspection, promoteTo string, promoteFrom []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.PieceInspection{}).
			Where("piece_id = ? AND inspection_type = ? AND status = ?",
				ins.PieceID, ins.InspectionType, entity.InspectionStatusPending).
			Updates(map[string]interface{}{
				"status":       ins.Status,
				"inspector_id": ins.InspectorID,
				"completed_at": ins.CompletedAt,
				"notes":        ins.Notes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(ins).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConflict
				}
				return err
			}
		}
		if len(promoteFrom) == 0 {
			return nil
		}
		return tx.Model(&entity.Piece{}).
			Where("id = ? AND status IN ?", ins.PieceID, promoteFrom).
			Update("status", promoteTo).Error
	})
}
