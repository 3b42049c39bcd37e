package workflow

// Cursor is the navigation position: a piece index into the arrangement and a
// page index into that piece's drawing pages. Moves never leave the grid;
// requests past the edges are no-ops.
type Cursor struct {
	Piece int
	Page  int
}

// NextPiece advances to the next piece, resetting the page.
func (c Cursor) NextPiece(pieceCount int) Cursor {
	return c.WithPiece(c.Piece+1, pieceCount)
}

// PreviousPiece moves back one piece, resetting the page.
func (c Cursor) PreviousPiece(pieceCount int) Cursor {
	return c.WithPiece(c.Piece-1, pieceCount)
}

// WithPiece jumps to piece i (clamped). The page resets to 0 whenever the
// piece index actually changes.
func (c Cursor) WithPiece(i, pieceCount int) Cursor {
	if pieceCount <= 0 {
		return Cursor{}
	}
	i = clamp(i, 0, pieceCount-1)
	if i == c.Piece {
		return c
	}
	return Cursor{Piece: i}
}

// NextPage advances one page within the current piece.
func (c Cursor) NextPage(pageCount int) Cursor {
	return c.WithPage(c.Page+1, pageCount)
}

// PreviousPage moves back one page within the current piece.
func (c Cursor) PreviousPage(pageCount int) Cursor {
	return c.WithPage(c.Page-1, pageCount)
}

// WithPage sets the page (clamped). A piece without pages pins the page at 0.
func (c Cursor) WithPage(i, pageCount int) Cursor {
	if pageCount <= 0 {
		c.Page = 0
		return c
	}
	c.Page = clamp(i, 0, pageCount-1)
	return c
}
