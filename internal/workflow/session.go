package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API is the set of QC endpoints the inspection workflow talks to.
type API interface {
	ListPieces(ctx context.Context, scope entity.Scope) ([]entity.Piece, error)
	GetArrangement(ctx context.Context, scope entity.Scope) ([]string, error)
	SaveArrangement(ctx context.Context, scope entity.Scope, pieceIDs []string) error
	CreatePoint(ctx context.Context, req PointRequest) (*entity.InspectionPoint, error)
	ListPoints(ctx context.Context, pieceID, pageID string) ([]entity.InspectionPoint, error)
	CompleteInspection(ctx context.Context, pieceID, inspectionType, decision string) (*entity.Piece, error)
}

// PointRequest creates an inspection point on a drawing page.
type PointRequest struct {
	PieceID        string  `json:"pieceId"`
	PageID         string  `json:"page"`
	InspectionType string  `json:"type"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Note           string  `json:"note,omitempty"`
}

// View identifies what is on screen. Async results carry the View they were
// requested for and are dropped if the user has moved on.
type View struct {
	PieceID string
	PageID  string
}

// Session is one technician's pass over the pieces of a scope. All methods
// are safe for concurrent use; network calls are made without holding the lock.
type Session struct {
	api    API
	scope  entity.Scope
	logger *zap.Logger

	mu        sync.Mutex
	pieces    []entity.Piece
	saved     []string // last order the server acknowledged
	cursor    Cursor
	points    []entity.InspectionPoint
	pointsFor View
	reorders  uint64 // sequence of the latest optimistic reorder
	confirmed uint64 // sequence of the latest acknowledged reorder
	reverted  uint64 // value of reorders when the display last reverted
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession creates an unloaded session for scope.
func NewSession(api API, scope entity.Scope, opts ...Option) *Session {
	s := &Session{api: api, scope: scope, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scope returns the session scope.
func (s *Session) Scope() entity.Scope {
	return s.scope
}

// Load fetches scheduled pieces and the saved arrangement in parallel and
// orders pieces by MergeArrangement. It returns ErrNotFound for an unknown
// workspace/form and ErrEmpty when nothing is scheduled; in both cases the
// session is left empty.
func (s *Session) Load(ctx context.Context) error {
	var (
		scheduled []entity.Piece
		saved     []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pieces, err := s.api.ListPieces(gctx, s.scope)
		if err != nil {
			return fmt.Errorf("list pieces: %w", err)
		}
		scheduled = pieces
		return nil
	})
	g.Go(func() error {
		ids, err := s.api.GetArrangement(gctx, s.scope)
		if err != nil {
			// A missing or unreadable arrangement falls back to schedule order.
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("load arrangement failed, using schedule order",
					zap.String("scope", s.scope.Key()), zap.Error(err))
			}
			return nil
		}
		saved = ids
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = Cursor{}
	s.points = nil
	s.pointsFor = View{}
	s.reverted = 0
	if err != nil {
		s.pieces = nil
		s.saved = nil
		return err
	}

	s.pieces = MergeArrangement(scheduled, saved)
	s.saved = PieceIDs(s.pieces)
	if len(s.pieces) == 0 {
		return ErrEmpty
	}
	return nil
}

// Pieces returns the current display order.
func (s *Session) Pieces() []entity.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pieces)
}

// Len returns the number of pieces.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pieces)
}

// Cursor returns the navigation position.
func (s *Session) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Current returns the piece under the cursor.
func (s *Session) Current() (entity.Piece, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pieces) == 0 {
		return entity.Piece{}, false
	}
	return s.pieces[s.cursor.Piece], true
}

// CurrentPage returns the drawing page under the cursor.
func (s *Session) CurrentPage() (entity.DrawingPage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage()
}

// View returns the piece/page currently displayed.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Progress counts pieces already decided for the scope's inspection type.
func (s *Session) Progress() (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pieces {
		if p.InspectionStatus(s.scope.InspectionType) != entity.InspectionStatusPending {
			done++
		}
	}
	return done, len(s.pieces)
}

// NextPiece moves to the next piece. It reports whether the cursor moved.
func (s *Session) NextPiece() bool { return s.Do(ActionNextPiece) }

// PreviousPiece moves to the previous piece.
func (s *Session) PreviousPiece() bool { return s.Do(ActionPreviousPiece) }

// NextPage moves to the next page of the current piece.
func (s *Session) NextPage() bool { return s.Do(ActionNextPage) }

// PreviousPage moves to the previous page of the current piece.
func (s *Session) PreviousPage() bool { return s.Do(ActionPreviousPage) }

// Swipe applies a gesture.
func (s *Session) Swipe(sw Swipe) bool { return s.Do(sw.Action()) }

// Do applies a navigation action, clamping at the edges.
func (s *Session) Do(a Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pieces)
	if n == 0 {
		return false
	}
	next := s.cursor
	switch a {
	case ActionNextPiece:
		next = next.NextPiece(n)
	case ActionPreviousPiece:
		next = next.PreviousPiece(n)
	case ActionNextPage:
		next = next.NextPage(len(s.pieces[next.Piece].DrawingPages))
	case ActionPreviousPage:
		next = next.PreviousPage(len(s.pieces[next.Piece].DrawingPages))
	default:
		return false
	}
	return s.moveTo(next)
}

// Select jumps to piece i (an arrangement card click). The page resets to 0.
func (s *Session) Select(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pieces) == 0 {
		return false
	}
	next := s.cursor.WithPiece(i, len(s.pieces))
	if next.Piece == s.cursor.Piece {
		next = Cursor{Piece: next.Piece}
	}
	return s.moveTo(next)
}

// PendingReorder is an optimistic reorder awaiting persistence.
type PendingReorder struct {
	Seq   uint64
	Order []string
}

// Reorder moves the piece at src to dst and persists the full new order.
// On failure the order reverts to the last acknowledged one and a
// *PersistenceError is returned.
func (s *Session) Reorder(ctx context.Context, src, dst int) error {
	p, ok := s.BeginReorder(src, dst)
	if !ok {
		return nil
	}
	err := s.api.SaveArrangement(ctx, s.scope, p.Order)
	return s.FinishReorder(p, err)
}

// BeginReorder applies the move locally. ok is false when nothing moved.
func (s *Session) BeginReorder(src, dst int) (PendingReorder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pieces)
	if n == 0 {
		return PendingReorder{}, false
	}
	src, dst = clamp(src, 0, n-1), clamp(dst, 0, n-1)
	if src == dst {
		return PendingReorder{}, false
	}

	focused := s.pieces[s.cursor.Piece].ID
	s.pieces = Move(s.pieces, src, dst)
	s.follow(focused)
	s.reorders++
	return PendingReorder{Seq: s.reorders, Order: PieceIDs(s.pieces)}, true
}

// FinishReorder records the outcome of a save. A failed save reverts only if
// no newer reorder has been started since. A save acknowledged after such a
// revert is shown again, unless the user has reordered in the meantime.
func (s *Session) FinishReorder(p PendingReorder, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		if p.Seq > s.confirmed {
			s.confirmed = p.Seq
			s.saved = slices.Clone(p.Order)
			if p.Seq < s.reverted && s.reverted == s.reorders && len(s.pieces) > 0 {
				s.apply(s.saved)
			}
		}
		return nil
	}

	if p.Seq == s.reorders && len(s.pieces) > 0 {
		s.apply(s.saved)
		s.reverted = s.reorders
		s.logger.Warn("arrangement save failed, reverted",
			zap.String("scope", s.scope.Key()), zap.Error(err))
	}
	return &PersistenceError{Op: "save arrangement", Err: err}
}

// apply reorders the display to ids, keeping the cursor on the focused piece.
func (s *Session) apply(ids []string) {
	focused := s.pieces[s.cursor.Piece].ID
	s.pieces = MergeArrangement(s.pieces, ids)
	s.follow(focused)
}

// AddPoint converts a click inside vp into percentage coordinates and creates
// a point on the current page. The result is shown only if the same page is
// still displayed when the request completes.
func (s *Session) AddPoint(ctx context.Context, vp Viewport, clickX, clickY float64, note string) (*entity.InspectionPoint, error) {
	x, y, err := vp.Percent(clickX, clickY)
	if err != nil {
		return nil, err
	}
	return s.AddPointAt(ctx, x, y, note)
}

// AddPointAt creates a point at percentage coordinates on the current page.
func (s *Session) AddPointAt(ctx context.Context, x, y float64, note string) (*entity.InspectionPoint, error) {
	s.mu.Lock()
	if len(s.pieces) == 0 {
		s.mu.Unlock()
		return nil, ErrNoPiece
	}
	target := s.view()
	s.mu.Unlock()
	return s.AddPointFor(ctx, target, x, y, note)
}

// AddPointFor creates a point on the page named by target, which the caller
// captured when the click happened. The point is overlaid only if target is
// still on screen when the request completes.
func (s *Session) AddPointFor(ctx context.Context, target View, x, y float64, note string) (*entity.InspectionPoint, error) {
	if target.PieceID == "" {
		return nil, ErrNoPiece
	}
	if target.PageID == "" {
		return nil, ErrNoPage
	}

	point, err := s.api.CreatePoint(ctx, PointRequest{
		PieceID:        target.PieceID,
		PageID:         target.PageID,
		InspectionType: s.scope.InspectionType,
		X:              x,
		Y:              y,
		Note:           note,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create point", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view() == target && s.pointsFor == target {
		s.points = append(slices.Clone(s.points), *point)
	}
	return point, nil
}

// RefreshPoints reloads the points of the current page.
func (s *Session) RefreshPoints(ctx context.Context) error {
	s.mu.Lock()
	if _, ok := s.currentPage(); !ok {
		s.points = nil
		s.pointsFor = View{}
		s.mu.Unlock()
		return nil
	}
	target := s.view()
	s.mu.Unlock()

	points, err := s.api.ListPoints(ctx, target.PieceID, target.PageID)
	if err != nil {
		return fmt.Errorf("list points: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view() != target {
		return nil
	}
	s.points = points
	s.pointsFor = target
	return nil
}

// Points returns the points to overlay on the current page.
func (s *Session) Points() []entity.InspectionPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.currentPage()
	if !ok {
		return nil
	}
	out := make([]entity.InspectionPoint, 0, len(s.points))
	for _, p := range s.points {
		if p.PageID == page.ID {
			out = append(out, p)
		}
	}
	return out
}

// Complete records decision for the current piece.
func (s *Session) Complete(ctx context.Context, decision string) error {
	s.mu.Lock()
	if len(s.pieces) == 0 {
		s.mu.Unlock()
		return ErrNoPiece
	}
	pieceID := s.pieces[s.cursor.Piece].ID
	s.mu.Unlock()
	return s.CompletePiece(ctx, pieceID, decision)
}

// CompletePiece records decision for pieceID. On success the piece is replaced
// by the server's copy and, if the cursor is still on it and it is not the
// last piece, the cursor advances. On failure the cursor stays put.
func (s *Session) CompletePiece(ctx context.Context, pieceID, decision string) error {
	if decision != entity.InspectionStatusApproved && decision != entity.InspectionStatusRejected {
		return ErrInvalidDecision
	}
	if pieceID == "" {
		return ErrNoPiece
	}

	updated, err := s.api.CompleteInspection(ctx, pieceID, s.scope.InspectionType, decision)
	if err != nil {
		return &PersistenceError{Op: "complete inspection", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.pieces, pieceID)
	if idx < 0 {
		return nil
	}
	s.pieces[idx] = mergePiece(s.pieces[idx], updated, s.scope.InspectionType, decision)
	if s.cursor.Piece == idx && idx < len(s.pieces)-1 {
		s.moveTo(Cursor{Piece: idx + 1})
	}
	return nil
}

// mergePiece overlays the server copy on the local one, keeping drawing pages
// when the response omits them and making sure the decision is visible.
func mergePiece(old entity.Piece, updated *entity.Piece, inspectionType, decision string) entity.Piece {
	next := old
	if updated != nil {
		next = *updated
		if len(next.DrawingPages) == 0 {
			next.DrawingPages = old.DrawingPages
		}
	}
	qc := make(map[string]string, len(old.QCStatus)+1)
	for k, v := range old.QCStatus {
		qc[k] = v
	}
	for k, v := range next.QCStatus {
		qc[k] = v
	}
	if qc[inspectionType] == "" || qc[inspectionType] == entity.InspectionStatusPending {
		qc[inspectionType] = decision
	}
	next.QCStatus = qc
	next.Inspections = nil
	return next
}

func (s *Session) moveTo(next Cursor) bool {
	if next == s.cursor {
		return false
	}
	s.cursor = next
	if s.view() != s.pointsFor {
		s.points = nil
		s.pointsFor = View{}
	}
	return true
}

// follow keeps the cursor on piece id after the order changed.
func (s *Session) follow(id string) {
	if i := indexOf(s.pieces, id); i >= 0 {
		s.moveTo(s.cursor.WithPiece(i, len(s.pieces)))
	}
}

func (s *Session) currentPage() (entity.DrawingPage, bool) {
	if len(s.pieces) == 0 {
		return entity.DrawingPage{}, false
	}
	pages := s.pieces[s.cursor.Piece].DrawingPages
	if len(pages) == 0 {
		return entity.DrawingPage{}, false
	}
	return pages[s.cursor.Page], true
}

func (s *Session) view() View {
	if len(s.pieces) == 0 {
		return View{}
	}
	v := View{PieceID: s.pieces[s.cursor.Piece].ID}
	if page, ok := s.currentPage(); ok {
		v.PageID = page.ID
	}
	return v
}
