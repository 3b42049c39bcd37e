package repository

import (
	"context"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"gorm.io/gorm"
)

// PointRepository 标注点仓库
type PointRepository struct {
	db *gorm.DB
}

func NewPointRepository(db *gorm.DB) *PointRepository {
	return &PointRepository{db: db}
}

// Create 创建标注点
func (r *PointRepository) Create(ctx context.Context, point *entity.InspectionPoint) error {
	return r.db.WithContext(ctx).Create(point).Error
}

// ListByPage 获取某图纸页的标注点
func (r *PointRepository) ListByPage(ctx context.Context, pieceID, pageID string) ([]entity.InspectionPoint, error) {
	points := []entity.InspectionPoint{}
	err := r.db.WithContext(ctx).
		Where("piece_id = ? AND page_id = ?", pieceID, pageID).
		Order("created_at ASC").
		Find(&points).Error
	return points, err
}

// CountOpenByPieces 统计每个构件未关闭的标注点数量（避免N+1）
func (r *PointRepository) CountOpenByPieces(ctx context.Context, pieceIDs []string, inspectionType string) (map[string]int, error) {
	counts := make(map[string]int, len(pieceIDs))
	if len(pieceIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PieceID string
		Total   int
	}
	err := r.db.WithContext(ctx).
		Model(&entity.InspectionPoint{}).
		Select("piece_id, COUNT(*) AS total").
		Where("piece_id IN ? AND inspection_type = ? AND status = ?", pieceIDs, inspectionType, entity.PointStatusOpen).
		Group("piece_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.PieceID] = row.Total
	}
	return counts, nil
}
