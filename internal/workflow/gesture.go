package workflow

import "math"

// Swipe is a gesture direction.
type Swipe int

const (
	SwipeNone Swipe = iota
	SwipeLeft
	SwipeRight
	SwipeUp
	SwipeDown
)

// Action is a navigation transition.
type Action int

const (
	ActionNone Action = iota
	ActionNextPiece
	ActionPreviousPiece
	ActionNextPage
	ActionPreviousPage
)

// DefaultSwipeThreshold is the minimum travel in pixels for a pointer drag to
// count as a swipe.
const DefaultSwipeThreshold = 10.0

// Action maps a swipe onto navigation. Horizontal swipes change piece (left is
// next), vertical swipes change page (up is next, down is previous).
func (s Swipe) Action() Action {
	switch s {
	case SwipeLeft:
		return ActionNextPiece
	case SwipeRight:
		return ActionPreviousPiece
	case SwipeUp:
		return ActionNextPage
	case SwipeDown:
		return ActionPreviousPage
	}
	return ActionNone
}

func (s Swipe) String() string {
	switch s {
	case SwipeLeft:
		return "left"
	case SwipeRight:
		return "right"
	case SwipeUp:
		return "up"
	case SwipeDown:
		return "down"
	}
	return "none"
}

// DetectSwipe classifies a pointer drag by its dominant axis. dx and dy are in
// screen coordinates (y grows downward). Travel below threshold is not a swipe.
func DetectSwipe(dx, dy, threshold float64) Swipe {
	ax, ay := math.Abs(dx), math.Abs(dy)
	if math.Max(ax, ay) < threshold {
		return SwipeNone
	}
	if ax >= ay {
		if dx < 0 {
			return SwipeLeft
		}
		return SwipeRight
	}
	if dy < 0 {
		return SwipeUp
	}
	return SwipeDown
}
