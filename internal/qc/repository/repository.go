package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Repositories QC仓库集合
type Repositories struct {
	Piece       *PieceRepository
	Schedule    *ScheduleRepository
	Arrangement *ArrangementRepository
	Point       *PointRepository
	Inspection  *InspectionRepository
}

// NewRepositories 创建QC仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Piece:       NewPieceRepository(db),
		Schedule:    NewScheduleRepository(db),
		Arrangement: NewArrangementRepository(db),
		Point:       NewPointRepository(db),
		Inspection:  NewInspectionRepository(db),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
