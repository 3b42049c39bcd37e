package workflow

import "errors"

var (
	// ErrNotFound is returned when the workspace, form or piece is unknown to the server.
	ErrNotFound = errors.New("not found")

	// ErrEmpty is returned by Load when no pieces are scheduled for the scope.
	// The session stays usable and renders an empty state.
	ErrEmpty = errors.New("no pieces scheduled")

	// ErrOutsideViewport is returned for clicks that fall outside the drawing box.
	ErrOutsideViewport = errors.New("click outside drawing viewport")

	// ErrNoPage is returned when annotating a piece without drawing pages.
	ErrNoPage = errors.New("piece has no drawing pages")

	// ErrInvalidDecision is returned for completion decisions other than APPROVED/REJECTED.
	ErrInvalidDecision = errors.New("decision must be APPROVED or REJECTED")

	// ErrNoPiece is returned when an operation needs a current piece and there is none.
	ErrNoPiece = errors.New("no piece selected")
)

// PersistenceError reports a failed save (arrangement, point, completion).
// It is non-fatal: the session has already reverted or left the state unsaved.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
