package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bitfantasy/precast/internal/qc/entity"
)

// fakeAPI is an in-memory server for session tests.
type fakeAPI struct {
	mu           sync.Mutex
	scopes       map[string][]entity.Piece
	arrangements map[string][]string
	points       []entity.InspectionPoint

	saveErr     error
	pointErr    error
	completeErr error
	saves       int

	// hooks run while a request is "in flight"
	onCreatePoint func()
	onListPoints  func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		scopes:       map[string][]entity.Piece{},
		arrangements: map[string][]string{},
	}
}

func (f *fakeAPI) schedule(scope entity.Scope, pieces ...entity.Piece) {
	f.scopes[scope.Key()] = pieces
}

func (f *fakeAPI) ListPieces(_ context.Context, scope entity.Scope) ([]entity.Piece, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pieces, ok := f.scopes[scope.Key()]
	if !ok {
		return nil, fmt.Errorf("workspace %s: %w", scope.WorkspaceID, ErrNotFound)
	}
	return slices.Clone(pieces), nil
}

func (f *fakeAPI) GetArrangement(_ context.Context, scope entity.Scope) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.arrangements[scope.Key()]), nil
}

func (f *fakeAPI) SaveArrangement(_ context.Context, scope entity.Scope, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.arrangements[scope.Key()] = slices.Clone(ids)
	return nil
}

func (f *fakeAPI) CreatePoint(_ context.Context, req PointRequest) (*entity.InspectionPoint, error) {
	if f.onCreatePoint != nil {
		f.onCreatePoint()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pointErr != nil {
		return nil, f.pointErr
	}
	p := entity.InspectionPoint{
		ID:             fmt.Sprintf("pt-%d", len(f.points)+1),
		PieceID:        req.PieceID,
		PageID:         req.PageID,
		InspectionType: req.InspectionType,
		X:              req.X,
		Y:              req.Y,
		Note:           req.Note,
		Status:         entity.PointStatusOpen,
	}
	f.points = append(f.points, p)
	return &p, nil
}

func (f *fakeAPI) ListPoints(_ context.Context, pieceID, pageID string) ([]entity.InspectionPoint, error) {
	if f.onListPoints != nil {
		f.onListPoints()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.InspectionPoint
	for _, p := range f.points {
		if p.PieceID == pieceID && p.PageID == pageID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) CompleteInspection(_ context.Context, pieceID, inspectionType, decision string) (*entity.Piece, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	for _, pieces := range f.scopes {
		for i := range pieces {
			if pieces[i].ID != pieceID {
				continue
			}
			if pieces[i].QCStatus == nil {
				pieces[i].QCStatus = map[string]string{}
			}
			pieces[i].QCStatus[inspectionType] = decision
			if decision == entity.InspectionStatusApproved && inspectionType == entity.InspectionTypePrePour {
				pieces[i].Status = entity.PieceStatusReadyForPour
			}
			p := pieces[i]
			p.DrawingPages = nil
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func piece(id string, pages ...string) entity.Piece {
	p := entity.Piece{ID: id, Mark: id, Status: entity.PieceStatusInProduction}
	for i, pg := range pages {
		p.DrawingPages = append(p.DrawingPages, entity.DrawingPage{ID: pg, PieceID: id, PageNumber: i + 1})
	}
	return p
}
