package entity

import "time"

// Workspace 工作区（车间/堆场区域）
type Workspace struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:200"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Workspace) TableName() string {
	return "qc_workspaces"
}

// Form 模台/批次，隶属于工作区
type Form struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	WorkspaceID string    `json:"workspace_id" gorm:"size:32;not null;index"`
	Name        string    `json:"name" gorm:"size:200"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Form) TableName() string {
	return "qc_forms"
}

// ScheduleEntry 排检记录：某构件在 (工作区, 模台, 检验类型) 下的排程顺序
type ScheduleEntry struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	WorkspaceID    string    `json:"workspace_id" gorm:"size:32;not null;uniqueIndex:idx_qc_schedule_piece"`
	FormID         string    `json:"form_id" gorm:"size:32;not null;uniqueIndex:idx_qc_schedule_piece"`
	InspectionType string    `json:"inspection_type" gorm:"size:20;not null;uniqueIndex:idx_qc_schedule_piece"`
	PieceID        string    `json:"piece_id" gorm:"size:32;not null;uniqueIndex:idx_qc_schedule_piece"`
	Sequence       int       `json:"sequence"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ScheduleEntry) TableName() string {
	return "qc_schedules"
}

// ArrangementItem 自定义排序的一项；同一 scope 的全部项在保存时整体替换
type ArrangementItem struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	WorkspaceID    string    `json:"workspace_id" gorm:"size:32;not null;index:idx_qc_arrangement_scope"`
	FormID         string    `json:"form_id" gorm:"size:32;not null;index:idx_qc_arrangement_scope"`
	InspectionType string    `json:"inspection_type" gorm:"size:20;not null;index:idx_qc_arrangement_scope"`
	Position       int       `json:"position"`
	PieceID        string    `json:"piece_id" gorm:"size:32;not null"`
	SavedBy        string    `json:"saved_by" gorm:"size:32"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ArrangementItem) TableName() string {
	return "qc_arrangement_items"
}

// Scope identifies the (workspace, form, inspection type) triple pieces are
// scheduled and arranged under.
type Scope struct {
	WorkspaceID    string `json:"workspace_id"`
	FormID         string `json:"form_id"`
	InspectionType string `json:"type"`
}

// Key returns a stable string form of the scope, used for cache keys.
func (s Scope) Key() string {
	return s.WorkspaceID + ":" + s.FormID + ":" + s.InspectionType
}
