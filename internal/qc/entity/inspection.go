package entity

import "time"

// 检验类型
const (
	InspectionTypePrePour  = "PRE_POUR"
	InspectionTypePostPour = "POST_POUR"
)

// 检验状态
const (
	InspectionStatusPending  = "PENDING"
	InspectionStatusApproved = "APPROVED"
	InspectionStatusRejected = "REJECTED"
)

// ValidInspectionType reports whether t is a known inspection type.
func ValidInspectionType(t string) bool {
	return t == InspectionTypePrePour || t == InspectionTypePostPour
}

// PieceInspection 构件检验结果（每个构件每种检验类型一条）
type PieceInspection struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	PieceID        string     `json:"piece_id" gorm:"size:32;not null;uniqueIndex:idx_qc_piece_inspection"`
	InspectionType string     `json:"inspection_type" gorm:"size:20;not null;uniqueIndex:idx_qc_piece_inspection"`
	Status         string     `json:"status" gorm:"size:20;default:PENDING"`
	InspectorID    string     `json:"inspector_id" gorm:"size:32"`
	CompletedAt    *time.Time `json:"completed_at"`
	Notes          string     `json:"notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PieceInspection) TableName() string {
	return "qc_piece_inspections"
}

// InspectionPoint 图纸标注点，坐标为相对图片的百分比 (0-100)
type InspectionPoint struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	PieceID        string    `json:"piece_id" gorm:"size:32;not null;index:idx_qc_points_page"`
	PageID         string    `json:"page_id" gorm:"size:32;not null;index:idx_qc_points_page"`
	InspectionType string    `json:"inspection_type" gorm:"size:20"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	Status         string    `json:"status" gorm:"size:20;default:OPEN"`
	Note           string    `json:"note,omitempty" gorm:"type:text"`
	CreatedBy      string    `json:"created_by,omitempty" gorm:"size:32"`
	CreatedAt      time.Time `json:"created_at"`
}

func (InspectionPoint) TableName() string {
	return "qc_inspection_points"
}

// 标注点状态
const (
	PointStatusOpen     = "OPEN"
	PointStatusResolved = "RESOLVED"
)
