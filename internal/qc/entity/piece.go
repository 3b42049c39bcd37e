package entity

import "time"

// Piece 预制构件
type Piece struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID   string `json:"project_id" gorm:"size:32;index"`
	Mark        string `json:"mark" gorm:"size:64;not null"` // 构件编号
	Description string `json:"description" gorm:"size:500"`
	DrawingRef  string `json:"drawing_ref" gorm:"size:100"`

	// 尺寸 (mm / kg)
	Length float64 `json:"length" gorm:"type:decimal(10,2)"`
	Width  float64 `json:"width" gorm:"type:decimal(10,2)"`
	Height float64 `json:"height" gorm:"type:decimal(10,2)"`
	Weight float64 `json:"weight" gorm:"type:decimal(10,2)"`

	Status string `json:"status" gorm:"size:32;default:IN_PRODUCTION"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	DrawingPages []DrawingPage     `json:"drawing_pages" gorm:"foreignKey:PieceID"`
	Inspections  []PieceInspection `json:"-" gorm:"foreignKey:PieceID"`
	Points       []InspectionPoint `json:"inspection_points,omitempty" gorm:"-"`
	QCStatus     map[string]string `json:"qc_status" gorm:"-"`
}

func (Piece) TableName() string {
	return "qc_pieces"
}

// 构件生命周期
const (
	PieceStatusInProduction     = "IN_PRODUCTION"
	PieceStatusReadyForPour     = "READY_FOR_POUR"
	PieceStatusReadyForYard     = "READY_FOR_YARD"
	PieceStatusReadyForShipping = "READY_FOR_SHIPPING"
	PieceStatusShipped          = "SHIPPED"
)

var pieceStatusOrder = map[string]int{
	PieceStatusInProduction:     0,
	PieceStatusReadyForPour:     1,
	PieceStatusReadyForYard:     2,
	PieceStatusReadyForShipping: 3,
	PieceStatusShipped:          4,
}

// StatusRank returns the lifecycle position of status, or -1 if unknown.
func StatusRank(status string) int {
	if r, ok := pieceStatusOrder[status]; ok {
		return r
	}
	return -1
}

// InspectionStatus reports the QC status of the piece for one inspection type.
// Missing records read as PENDING.
func (p Piece) InspectionStatus(inspectionType string) string {
	for _, ins := range p.Inspections {
		if ins.InspectionType == inspectionType {
			return ins.Status
		}
	}
	if s, ok := p.QCStatus[inspectionType]; ok && s != "" {
		return s
	}
	return InspectionStatusPending
}

// FillQCStatus 根据检验记录填充 qc_status
func (p *Piece) FillQCStatus() {
	p.QCStatus = map[string]string{
		InspectionTypePrePour:  InspectionStatusPending,
		InspectionTypePostPour: InspectionStatusPending,
	}
	for _, ins := range p.Inspections {
		p.QCStatus[ins.InspectionType] = ins.Status
	}
}

// DrawingPage 构件图纸页
type DrawingPage struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	PieceID    string    `json:"piece_id" gorm:"size:32;not null;index"`
	PageNumber int       `json:"page_number" gorm:"not null"`
	Title      string    `json:"title" gorm:"size:200"`
	ObjectKey  string    `json:"object_key,omitempty" gorm:"size:512"`
	ImageURL   string    `json:"image_url,omitempty" gorm:"size:512"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DrawingPage) TableName() string {
	return "qc_drawing_pages"
}
