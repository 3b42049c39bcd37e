package repository

import (
	"context"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"gorm.io/gorm"
)

// PieceRepository 构件仓库
type PieceRepository struct {
	db *gorm.DB
}

func NewPieceRepository(db *gorm.DB) *PieceRepository {
	return &PieceRepository{db: db}
}

func orderedPages(db *gorm.DB) *gorm.DB {
	return db.Order("page_number ASC")
}

// FindByID 根据ID查找构件（含图纸页和检验记录）
func (r *PieceRepository) FindByID(ctx context.Context, id string) (*entity.Piece, error) {
	var piece entity.Piece
	err := r.db.WithContext(ctx).
		Preload("DrawingPages", orderedPages).
		Preload("Inspections").
		Where("id = ?", id).
		First(&piece).Error
	if err != nil {
		return nil, notFound(err)
	}
	piece.FillQCStatus()
	return &piece, nil
}

// FindByIDs 批量查找构件，返回顺序与 ids 一致，缺失的跳过
func (r *PieceRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.Piece, error) {
	if len(ids) == 0 {
		return []entity.Piece{}, nil
	}
	var pieces []entity.Piece
	err := r.db.WithContext(ctx).
		Preload("DrawingPages", orderedPages).
		Preload("Inspections").
		Where("id IN ?", ids).
		Find(&pieces).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[string]entity.Piece, len(pieces))
	for _, p := range pieces {
		p.FillQCStatus()
		byID[p.ID] = p
	}
	out := make([]entity.Piece, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListByStatus 按生命周期状态查询构件
func (r *PieceRepository) ListByStatus(ctx context.Context, status string) ([]entity.Piece, error) {
	var pieces []entity.Piece
	err := r.db.WithContext(ctx).
		Preload("Inspections").
		Where("status = ?", status).
		Order("mark ASC").
		Find(&pieces).Error
	for i := range pieces {
		pieces[i].FillQCStatus()
	}
	return pieces, err
}

// Create 创建构件
func (r *PieceRepository) Create(ctx context.Context, piece *entity.Piece) error {
	return r.db.WithContext(ctx).Omit("DrawingPages", "Inspections").Create(piece).Error
}

// CreateBatch 批量创建构件
func (r *PieceRepository) CreateBatch(ctx context.Context, pieces []entity.Piece) error {
	if len(pieces) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("DrawingPages", "Inspections").CreateInBatches(pieces, 100).Error
}

// UpdateStatus 更新构件生命周期状态
func (r *PieceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.Piece{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreatePage 创建图纸页
func (r *PieceRepository) CreatePage(ctx context.Context, page *entity.DrawingPage) error {
	return r.db.WithContext(ctx).Create(page).Error
}

// FindPage 根据ID查找图纸页
func (r *PieceRepository) FindPage(ctx context.Context, id string) (*entity.DrawingPage, error) {
	var page entity.DrawingPage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&page).Error; err != nil {
		return nil, notFound(err)
	}
	return &page, nil
}

// NextPageNumber 获取下一个页码
func (r *PieceRepository) NextPageNumber(ctx context.Context, pieceID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&entity.DrawingPage{}).
		Select("COALESCE(MAX(page_number), 0)").
		Where("piece_id = ?", pieceID).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
