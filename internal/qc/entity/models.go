package entity

// AllModels 返回需要迁移的 QC 数据表
func AllModels() []interface{} {
	return []interface{}{
		&Workspace{},
		&Form{},
		&ScheduleEntry{},
		&ArrangementItem{},
		&Piece{},
		&DrawingPage{},
		&PieceInspection{},
		&InspectionPoint{},
	}
}
