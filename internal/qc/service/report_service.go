package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/xuri/excelize/v2"
)

// ReportService 质检报表服务
type ReportService struct {
	arrangement *ArrangementService
	pointRepo   *repository.PointRepository
}

// NewReportService 创建报表服务
func NewReportService(arrangement *ArrangementService, pointRepo *repository.PointRepository) *ReportService {
	return &ReportService{arrangement: arrangement, pointRepo: pointRepo}
}

var inspectionReportHeaders = []string{
	"序号", "构件编号", "描述", "图号", "构件状态",
	"浇筑前检验", "浇筑后检验", "检验员", "完成时间", "未关闭标注点",
}

// ExportInspections 按队列顺序导出 scope 的质检结果为xlsx
func (s *ReportService) ExportInspections(ctx context.Context, scope entity.Scope) (*excelize.File, string, error) {
	pieces, err := s.arrangement.Queue(ctx, scope)
	if err != nil {
		return nil, "", err
	}
	ids := make([]string, len(pieces))
	for i, p := range pieces {
		ids[i] = p.ID
	}
	openPoints, err := s.pointRepo.CountOpenByPieces(ctx, ids, scope.InspectionType)
	if err != nil {
		return nil, "", fmt.Errorf("count points: %w", err)
	}

	f := excelize.NewFile()
	sheet := "质检"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range inspectionReportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	// 写入数据行
	var approved, rejected int
	for rowIdx, p := range pieces {
		row := rowIdx + 2
		ins := inspectionOf(p, scope.InspectionType)
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), rowIdx+1)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), p.Mark)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), p.Description)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), p.DrawingRef)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), p.Status)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), p.InspectionStatus(entity.InspectionTypePrePour))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), p.InspectionStatus(entity.InspectionTypePostPour))
		if ins != nil {
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), ins.InspectorID)
			if ins.CompletedAt != nil {
				f.SetCellValue(sheet, fmt.Sprintf("I%d", row), ins.CompletedAt.Format("2006-01-02 15:04"))
			}
		}
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), openPoints[p.ID])

		switch p.InspectionStatus(scope.InspectionType) {
		case entity.InspectionStatusApproved:
			approved++
		case entity.InspectionStatusRejected:
			rejected++
		}
	}

	// 底部汇总行
	summaryRow := len(pieces) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), fmt.Sprintf("构件数: %d", len(pieces)))
	f.SetCellValue(sheet, fmt.Sprintf("F%d", summaryRow), fmt.Sprintf("通过: %d", approved))
	f.SetCellValue(sheet, fmt.Sprintf("G%d", summaryRow), fmt.Sprintf("驳回: %d", rejected))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("J%d", summaryRow), summaryStyle)

	colWidths := []float64{6, 14, 24, 14, 18, 12, 12, 14, 18, 12}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("QC_%s_%s_%s.xlsx", scope.WorkspaceID, scope.FormID, scope.InspectionType)
	return f, filename, nil
}

func inspectionOf(p entity.Piece, inspectionType string) *entity.PieceInspection {
	for i := range p.Inspections {
		if p.Inspections[i].InspectionType == inspectionType {
			return &p.Inspections[i]
		}
	}
	return nil
}
