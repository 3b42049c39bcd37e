package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// PieceService 构件服务
type PieceService struct {
	repo     *repository.PieceRepository
	schedule *ScheduleService
	logger   *zap.Logger
}

// NewPieceService 创建构件服务
func NewPieceService(repo *repository.PieceRepository, schedule *ScheduleService, logger *zap.Logger) *PieceService {
	return &PieceService{repo: repo, schedule: schedule, logger: logger}
}

// CreatePieceRequest 创建构件请求
type CreatePieceRequest struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Mark        string  `json:"mark" binding:"required"`
	Description string  `json:"description"`
	DrawingRef  string  `json:"drawing_ref"`
	Length      float64 `json:"length"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Weight      float64 `json:"weight"`
}

// ImportResult 导入结果
type ImportResult struct {
	Success  int      `json:"created"`
	Failed   int      `json:"errors"`
	PieceIDs []string `json:"piece_ids"`
	Messages []string `json:"messages,omitempty"`
}

// ListForScope 获取 scope 下排程的构件（排程顺序，含图纸页）
func (s *PieceService) ListForScope(ctx context.Context, scope entity.Scope) ([]entity.Piece, error) {
	if err := s.schedule.ResolveScope(ctx, scope); err != nil {
		return nil, err
	}
	ids, err := s.schedule.repo.ListPieceIDs(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	pieces, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find pieces: %w", err)
	}
	return pieces, nil
}

// Get 获取构件详情
func (s *PieceService) Get(ctx context.Context, id string) (*entity.Piece, error) {
	piece, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", id, err)
	}
	return piece, nil
}

// Create 创建构件
func (s *PieceService) Create(ctx context.Context, req *CreatePieceRequest) (*entity.Piece, error) {
	piece := pieceFromRequest(req)
	if piece.Mark == "" {
		return nil, fmt.Errorf("%w: mark is required", ErrInvalidInput)
	}
	if err := s.repo.Create(ctx, piece); err != nil {
		return nil, fmt.Errorf("create piece: %w", err)
	}
	piece.DrawingPages = []entity.DrawingPage{}
	piece.FillQCStatus()
	return piece, nil
}

func pieceFromRequest(req *CreatePieceRequest) *entity.Piece {
	piece := &entity.Piece{
		ID:          req.ID,
		ProjectID:   req.ProjectID,
		Mark:        strings.TrimSpace(req.Mark),
		Description: req.Description,
		DrawingRef:  req.DrawingRef,
		Length:      req.Length,
		Width:       req.Width,
		Height:      req.Height,
		Weight:      req.Weight,
		Status:      entity.PieceStatusInProduction,
	}
	if piece.ID == "" {
		piece.ID = newID()
	}
	return piece
}

// pieceCSVHeaders 导入CSV列: 构件编号,描述,图号,长,宽,高,重量,项目
var pieceCSVHeaders = []string{"构件编号", "描述", "图号", "长度", "宽度", "高度", "重量", "项目ID"}

// ImportCSV 从CSV导入构件，支持 UTF-8 和 GBK 编码
// 首行为表头时跳过；单行错误计入 Failed，不影响其他行
func (s *PieceService) ImportCSV(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		// GBK → UTF-8
		src = transform.NewReader(src, simplifiedchinese.GBK.NewDecoder())
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	result := &ImportResult{PieceIDs: []string{}}
	var pieces []entity.Piece
	for first := true; ; first = false {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv: %v", ErrInvalidInput, err)
		}
		lineNo, _ := r.FieldPos(0)
		if first && isHeaderRow(rec) {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		req, err := parsePieceRecord(rec)
		if err != nil {
			result.Failed++
			result.Messages = append(result.Messages, fmt.Sprintf("第%d行: %v", lineNo, err))
			continue
		}
		piece := pieceFromRequest(req)
		pieces = append(pieces, *piece)
		result.PieceIDs = append(result.PieceIDs, piece.ID)
	}

	if len(pieces) > 0 {
		if err := s.repo.CreateBatch(ctx, pieces); err != nil {
			return nil, fmt.Errorf("batch create: %w", err)
		}
	}
	result.Success = len(pieces)
	s.logger.Info("pieces imported", zap.Int("created", result.Success), zap.Int("failed", result.Failed))
	return result, nil
}

func isHeaderRow(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(rec[0]))
	return first == "mark" || first == pieceCSVHeaders[0]
}

func parsePieceRecord(rec []string) (*CreatePieceRequest, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	req := &CreatePieceRequest{
		Mark:        field(0),
		Description: field(1),
		DrawingRef:  field(2),
		ProjectID:   field(7),
	}
	if req.Mark == "" {
		return nil, fmt.Errorf("构件编号为空")
	}
	dims := []*float64{&req.Length, &req.Width, &req.Height, &req.Weight}
	for j, dst := range dims {
		v := field(3 + j)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s格式错误: %q", pieceCSVHeaders[3+j], v)
		}
		*dst = f
	}
	return req, nil
}

// stageStatus 合格阶段 → 构件状态
var stageStatus = map[string]string{
	"pour":     entity.PieceStatusReadyForPour,
	"yard":     entity.PieceStatusReadyForYard,
	"shipping": entity.PieceStatusReadyForShipping,
	"shipped":  entity.PieceStatusShipped,
}

// Eligible 列出某阶段合格的构件 (pour/yard/shipping 或状态名)
func (s *PieceService) Eligible(ctx context.Context, stage string) ([]entity.Piece, error) {
	status, ok := stageStatus[strings.ToLower(stage)]
	if !ok {
		if entity.StatusRank(stage) < 0 {
			return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, stage)
		}
		status = stage
	}
	pieces, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list pieces: %w", err)
	}
	if pieces == nil {
		pieces = []entity.Piece{}
	}
	return pieces, nil
}

// manualTransitions 堆场/发运阶段允许人工推进的状态，浇筑相关由质检推进
var manualTransitions = map[string]string{
	entity.PieceStatusReadyForYard:     entity.PieceStatusReadyForShipping,
	entity.PieceStatusReadyForShipping: entity.PieceStatusShipped,
}

// AdvanceStatus 推进构件生命周期（只能前进一步）
func (s *PieceService) AdvanceStatus(ctx context.Context, id, status string) (*entity.Piece, error) {
	if entity.StatusRank(status) < 0 {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	piece, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if next, ok := manualTransitions[piece.Status]; !ok || next != status {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, piece.Status, status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.logger.Info("piece status advanced",
		zap.String("piece_id", id), zap.String("from", piece.Status), zap.String("to", status))
	piece.Status = status
	return piece, nil
}
