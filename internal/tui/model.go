// Package tui is the terminal inspection workbench: an arrangement list on the
// left, the current drawing page with its inspection points on the right.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/workflow"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const (
	listWidth      = 30
	headerHeight   = 1
	footerHeight   = 3
	crosshairStep  = 5.0
	swipeThreshold = 2.0 // cells
)

type loadedMsg struct{ err error }

type reorderedMsg struct {
	pending workflow.PendingReorder
	err     error
}

type completedMsg struct {
	mark     string
	decision string
	err      error
}

type pointsMsg struct{ err error }

type pointAddedMsg struct {
	point *entity.InspectionPoint
	err   error
}

// Model is the bubbletea model driving one inspection session.
type Model struct {
	ctx     context.Context
	api     workflow.API
	session *workflow.Session
	logger  *zap.Logger

	width  int
	height int

	spinner  spinner.Model
	progress progress.Model
	note     textinput.Model
	noting   bool

	busy      int
	loaded    bool
	status    string
	err       error
	crossX    float64 // crosshair, percent
	crossY    float64
	dragStart *[2]int
}

// New creates a model for scope. ctx bounds every request the model makes.
func New(ctx context.Context, api workflow.API, scope entity.Scope, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "备注 (enter 保存, esc 取消)"
	ti.CharLimit = 200
	ti.Cursor.SetMode(cursor.CursorStatic)

	return &Model{
		ctx:      ctx,
		api:      api,
		session:  workflow.NewSession(api, scope, workflow.WithLogger(logger)),
		logger:   logger,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(20), progress.WithoutPercentage()),
		note:     ti,
		crossX:   50,
		crossY:   50,
	}
}

// Session exposes the underlying session.
func (m *Model) Session() *workflow.Session {
	return m.session
}

func (m *Model) Init() tea.Cmd {
	return m.start(m.loadCmd())
}

// start runs cmd in the background and keeps the spinner going while any
// request is in flight.
func (m *Model) start(cmd tea.Cmd) tea.Cmd {
	m.busy++
	if m.busy == 1 {
		return tea.Batch(cmd, m.spinner.Tick)
	}
	return cmd
}

func (m *Model) done() {
	if m.busy > 0 {
		m.busy--
	}
}

func (m *Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.session.Load(m.ctx)}
	}
}

func (m *Model) pointsCmd() tea.Cmd {
	return func() tea.Msg {
		return pointsMsg{err: m.session.RefreshPoints(m.ctx)}
	}
}

func (m *Model) saveCmd(p workflow.PendingReorder) tea.Cmd {
	scope := m.session.Scope()
	return func() tea.Msg {
		return reorderedMsg{pending: p, err: m.api.SaveArrangement(m.ctx, scope, p.Order)}
	}
}

// completeCmd decides the piece under the cursor now, not when the command
// runs; the technician may have moved on by then.
func (m *Model) completeCmd(decision string) tea.Cmd {
	cur, ok := m.session.Current()
	if !ok {
		m.err = workflow.ErrNoPiece
		return nil
	}
	return func() tea.Msg {
		return completedMsg{mark: cur.Mark, decision: decision, err: m.session.CompletePiece(m.ctx, cur.ID, decision)}
	}
}

func (m *Model) addPointCmd(x, y float64, note string) tea.Cmd {
	target := m.session.View()
	return func() tea.Msg {
		point, err := m.session.AddPointFor(m.ctx, target, x, y, note)
		return pointAddedMsg{point: point, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.busy == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.done()
		m.loaded = true
		m.err = nil
		switch {
		case errors.Is(msg.err, workflow.ErrEmpty):
			m.status = "该模台没有排检构件"
			return m, nil
		case errors.Is(msg.err, workflow.ErrNotFound):
			m.err = fmt.Errorf("工作区或模台不存在: %w", msg.err)
			return m, nil
		case msg.err != nil:
			m.err = msg.err
			return m, nil
		}
		done, total := m.session.Progress()
		m.status = fmt.Sprintf("已加载 %d 个构件 (%d 已检)", total, done)
		return m, m.start(m.pointsCmd())

	case reorderedMsg:
		m.done()
		if err := m.session.FinishReorder(msg.pending, msg.err); err != nil {
			m.err = err
			return m, nil
		}
		m.status = "排序已保存"
		return m, nil

	case completedMsg:
		m.done()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s: %s", msg.mark, decisionLabel(msg.decision))
		return m, m.start(m.pointsCmd())

	case pointsMsg:
		m.done()
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case pointAddedMsg:
		m.done()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("已标注 (%.1f%%, %.1f%%)", msg.point.X, msg.point.Y)
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if m.noting {
			return m.handleNoteKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "r":
		m.status = "重新加载..."
		return m, m.start(m.loadCmd())
	case "right", "l", "n":
		return m.navigate(workflow.ActionNextPiece)
	case "left", "h", "p":
		return m.navigate(workflow.ActionPreviousPiece)
	case "down", "j", "pgdown":
		return m.navigate(workflow.ActionNextPage)
	case "up", "k", "pgup":
		return m.navigate(workflow.ActionPreviousPage)
	case "[":
		return m.shift(-1)
	case "]":
		return m.shift(1)
	case "a":
		return m.decide(entity.InspectionStatusApproved)
	case "x":
		return m.decide(entity.InspectionStatusRejected)
	case "shift+left":
		m.crossX = clampPercent(m.crossX - crosshairStep)
	case "shift+right":
		m.crossX = clampPercent(m.crossX + crosshairStep)
	case "shift+up":
		m.crossY = clampPercent(m.crossY - crosshairStep)
	case "shift+down":
		m.crossY = clampPercent(m.crossY + crosshairStep)
	case "m":
		if _, ok := m.session.CurrentPage(); !ok {
			m.err = workflow.ErrNoPage
			return m, nil
		}
		m.noting = true
		m.note.SetValue("")
		return m, m.note.Focus()
	default:
		if i, err := strconv.Atoi(key); err == nil && i >= 1 && i <= 9 {
			if m.session.Select(i - 1) {
				return m, m.start(m.pointsCmd())
			}
		}
	}
	return m, nil
}

func (m *Model) handleNoteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.noting = false
		m.note.Blur()
		return m, nil
	case "enter":
		m.noting = false
		m.note.Blur()
		return m, m.start(m.addPointCmd(m.crossX, m.crossY, m.note.Value()))
	}
	var cmd tea.Cmd
	m.note, cmd = m.note.Update(msg)
	return m, cmd
}

func (m *Model) navigate(a workflow.Action) (tea.Model, tea.Cmd) {
	if !m.session.Do(a) {
		return m, nil
	}
	m.err = nil
	return m, m.start(m.pointsCmd())
}

func (m *Model) decide(decision string) (tea.Model, tea.Cmd) {
	cmd := m.completeCmd(decision)
	if cmd == nil {
		return m, nil
	}
	return m, m.start(cmd)
}

// shift moves the current piece one slot up or down and saves the new order.
func (m *Model) shift(delta int) (tea.Model, tea.Cmd) {
	src := m.session.Cursor().Piece
	p, ok := m.session.BeginReorder(src, src+delta)
	if !ok {
		return m, nil
	}
	return m, m.start(m.saveCmd(p))
}

// handleMouse turns drags into swipes and clicks on the drawing into points.
func (m *Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Button != tea.MouseButtonLeft && msg.Action != tea.MouseActionRelease {
		return m, nil
	}
	switch msg.Action {
	case tea.MouseActionPress:
		m.dragStart = &[2]int{msg.X, msg.Y}
		return m, nil
	case tea.MouseActionRelease:
		if m.dragStart == nil {
			return m, nil
		}
		start := *m.dragStart
		m.dragStart = nil

		sw := workflow.DetectSwipe(float64(msg.X-start[0]), float64(msg.Y-start[1]), swipeThreshold)
		if sw != workflow.SwipeNone {
			return m.navigate(sw.Action())
		}
		if row, ok := m.listRow(msg.X, msg.Y); ok {
			if m.session.Select(row) {
				return m, m.start(m.pointsCmd())
			}
			return m, nil
		}
		x, y, err := m.drawingViewport().Percent(float64(msg.X)+0.5, float64(msg.Y)+0.5)
		if err != nil {
			return m, nil
		}
		if _, ok := m.session.CurrentPage(); !ok {
			m.err = workflow.ErrNoPage
			return m, nil
		}
		m.crossX, m.crossY = x, y
		return m, m.start(m.addPointCmd(x, y, ""))
	}
	return m, nil
}

// listRow maps a click in the arrangement pane to a piece index.
func (m *Model) listRow(x, y int) (int, bool) {
	if x <= 0 || x >= listWidth-1 {
		return 0, false
	}
	_, h := m.drawingSize()
	row := y - headerHeight - 1
	if row < 0 || row >= h {
		return 0, false
	}
	row += m.listOffset()
	if row >= m.session.Len() {
		return 0, false
	}
	return row, true
}

func decisionLabel(decision string) string {
	switch decision {
	case entity.InspectionStatusApproved:
		return "合格"
	case entity.InspectionStatusRejected:
		return "不合格"
	}
	return "待检"
}

func clampPercent(v float64) float64 {
	return max(0, min(100, v))
}
