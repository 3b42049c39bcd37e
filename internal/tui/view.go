package tui

import (
	"fmt"
	"strings"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/workflow"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24")).Padding(0, 1)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pointStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	crossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

const helpText = "←/→ 构件  ↑/↓ 图纸页  [/] 调整顺序  a 合格  x 不合格  m 标注  shift+方向 移动准星  r 刷新  q 退出"

func (m *Model) size() (w, h int) {
	w, h = m.width, m.height
	if w == 0 {
		w = 100
	}
	if h == 0 {
		h = 30
	}
	return w, h
}

// drawingSize is the interior of the drawing pane, in cells.
func (m *Model) drawingSize() (w, h int) {
	tw, th := m.size()
	w = max(20, tw-listWidth-2)
	h = max(8, th-headerHeight-footerHeight-2)
	return w, h
}

// drawingViewport is the drawing interior in screen cells, matching View.
func (m *Model) drawingViewport() workflow.Viewport {
	w, h := m.drawingSize()
	return workflow.Viewport{
		Left:   float64(listWidth + 1),
		Top:    float64(headerHeight + 1),
		Width:  float64(w),
		Height: float64(h),
	}
}

// listOffset is the index of the first visible row of the arrangement pane.
func (m *Model) listOffset() int {
	_, h := m.drawingSize()
	cur := m.session.Cursor().Piece
	if cur < h {
		return 0
	}
	return cur - h + 1
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), m.renderDrawing()))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	scope := m.session.Scope()
	done, total := m.session.Progress()
	ratio := 0.0
	if total > 0 {
		ratio = float64(done) / float64(total)
	}
	title := fmt.Sprintf("质检 %s / %s  %s", scope.WorkspaceID, scope.FormID, inspectionTypeLabel(scope.InspectionType))
	return lipgloss.JoinHorizontal(lipgloss.Center,
		headerStyle.Render(title),
		" ", m.progress.ViewAs(ratio),
		fmt.Sprintf(" %d/%d", done, total),
	)
}

func (m *Model) renderList() string {
	_, h := m.drawingSize()
	pieces := m.session.Pieces()
	cur := m.session.Cursor().Piece
	inspectionType := m.session.Scope().InspectionType

	offset := m.listOffset()
	lines := make([]string, 0, h)
	for i := offset; i < len(pieces) && len(lines) < h; i++ {
		p := pieces[i]
		label := fmt.Sprintf("%2d %-18s", i+1, truncate(p.Mark, 18))
		line := label + " " + statusMark(p.InspectionStatus(inspectionType))
		if i == cur {
			line = selectedStyle.Render(label) + " " + statusMark(p.InspectionStatus(inspectionType))
		}
		lines = append(lines, line)
	}
	if len(pieces) == 0 && m.loaded {
		lines = append(lines, pendingStyle.Render("(无构件)"))
	}
	return paneStyle.Width(listWidth - 2).Height(h).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderDrawing() string {
	w, h := m.drawingSize()
	if _, ok := m.session.CurrentPage(); !ok {
		msg := "无图纸"
		if !m.loaded {
			msg = m.spinner.View() + " 加载中"
		}
		return paneStyle.Width(w).Height(h).Render(lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, msg))
	}

	grid := make([][]string, h)
	for y := range grid {
		grid[y] = make([]string, w)
		for x := range grid[y] {
			grid[y][x] = pendingStyle.Render("·")
		}
	}
	local := workflow.Viewport{Width: float64(w), Height: float64(h)}
	put := func(px, py float64, s string) {
		x, y := min(int(px), w-1), min(int(py), h-1)
		if x >= 0 && y >= 0 {
			grid[y][x] = s
		}
	}
	cx, cy := local.Pixel(m.crossX, m.crossY)
	put(cx, cy, crossStyle.Render("+"))
	for _, pt := range m.session.Points() {
		px, py := local.Pixel(pt.X, pt.Y)
		mark := "●"
		if pt.Status == entity.PointStatusResolved {
			mark = "○"
		}
		put(px, py, pointStyle.Render(mark))
	}

	rows := make([]string, h)
	for y := range grid {
		rows[y] = strings.Join(grid[y], "")
	}
	return paneStyle.Width(w).Height(h).Render(strings.Join(rows, "\n"))
}

func (m *Model) renderFooter() string {
	var lines []string

	info := ""
	if cur, ok := m.session.Current(); ok {
		c := m.session.Cursor()
		info = fmt.Sprintf("%s  %s", cur.Mark, cur.Status)
		if page, ok := m.session.CurrentPage(); ok {
			info += fmt.Sprintf("  第 %d/%d 页 %s", c.Page+1, len(cur.DrawingPages), page.Title)
		}
		info += fmt.Sprintf("  标注 %d", len(m.session.Points()))
	}
	if m.busy > 0 {
		info = m.spinner.View() + " " + info
	}
	lines = append(lines, info)

	switch {
	case m.noting:
		lines = append(lines, m.note.View())
	case m.err != nil:
		lines = append(lines, errorStyle.Render("错误: "+m.err.Error()))
	default:
		lines = append(lines, m.status)
	}
	lines = append(lines, helpStyle.Render(helpText))
	return strings.Join(lines, "\n")
}

func statusMark(status string) string {
	switch status {
	case entity.InspectionStatusApproved:
		return approvedStyle.Render("✓")
	case entity.InspectionStatusRejected:
		return rejectedStyle.Render("✗")
	}
	return pendingStyle.Render("○")
}

func inspectionTypeLabel(t string) string {
	switch t {
	case entity.InspectionTypePrePour:
		return "浇筑前检验"
	case entity.InspectionTypePostPour:
		return "浇筑后检验"
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
