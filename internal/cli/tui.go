package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/screen"
)

// Board view tuning.
const (
	moveStep    = 10.0
	resizeScale = 1.1
	maxTagKeys  = 9
)

// Styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)

	chipStyle         = lipgloss.NewStyle().Foreground(colorGray).Padding(0, 1)
	chipSelectedStyle = lipgloss.NewStyle().Foreground(colorWhite).Background(colorCyan).Padding(0, 1)
	chipFocusStyle    = lipgloss.NewStyle().Underline(true)
	errorPanelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorRed).Padding(1, 2)
)

// tuiCommand creates the interactive board command.
func (c *CLI) tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui [variant]",
		Short: "Open a board variant in an interactive terminal view",
		Long: `Open a board variant in the terminal. Cards can be moved and resized and
the board filtered by tag; changes live only for the session.

Keys:
  tab / shift+tab   focus next / previous card
  arrows, hjkl      move the focused card
  + / -             grow / shrink the focused card
  1-9               toggle the n-th tag filter
  [ / ]             focus previous / next tag chip
  x                 remove the focused tag chip
  c                 clear the tag filter
  a                 add a test card
  q                 quit`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: c.completeVariants,
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := c.startBoard(cmd.Context(), variantArg(args))
			if err != nil {
				return err
			}
			defer lb.close()

			// Logs would tear the alt screen.
			level := c.Logger.GetLevel()
			c.SetLogLevel(LogFatal)
			defer c.SetLogLevel(level)

			m := NewBoardModel(cmd.Context(), lb.screen)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// =============================================================================
// BoardModel - Interactive board
// =============================================================================

// boardMsg carries a fresh snapshot, or the error of the intent that
// preceded it.
type boardMsg struct {
	snap screen.Snapshot
	err  error
}

// BoardModel is the bubbletea model for one board screen.
type BoardModel struct {
	ctx    context.Context
	screen *screen.Screen

	snap     screen.Snapshot
	loadErr  error
	status   string
	Cursor   int
	TagFocus int
	Height   int
	Offset   int
}

// NewBoardModel creates a board model for s. The screen's loop must be
// running; the model mounts it on Init.
func NewBoardModel(ctx context.Context, s *screen.Screen) BoardModel {
	return BoardModel{
		ctx:    ctx,
		screen: s,
		snap:   screen.Snapshot{State: screen.Loading, Variant: s.Variant()},
		Height: 15,
	}
}

func (m BoardModel) Init() tea.Cmd {
	return m.load
}

func (m BoardModel) load() tea.Msg {
	if err := m.screen.Mount(m.ctx); err != nil {
		return boardMsg{err: err}
	}
	if _, err := m.screen.Wait(m.ctx); err != nil {
		snap, _ := m.screen.Snapshot(m.ctx)
		return boardMsg{snap: snap, err: err}
	}
	return m.refresh()
}

func (m BoardModel) refresh() tea.Msg {
	snap, err := m.screen.Snapshot(m.ctx)
	return boardMsg{snap: snap, err: err}
}

// intent runs fn on the screen and then refreshes the snapshot.
func (m BoardModel) intent(op string, fn func(*board.Engine) error) tea.Cmd {
	return func() tea.Msg {
		if err := m.screen.Do(m.ctx, op, fn); err != nil {
			snap, _ := m.screen.Snapshot(m.ctx)
			return boardMsg{snap: snap, err: err}
		}
		return m.refresh()
	}
}

func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case boardMsg:
		if msg.snap.Variant != "" {
			m.snap = msg.snap
		}
		m.status = ""
		if msg.err != nil {
			if m.snap.State == screen.LoadFailed || m.snap.State == screen.Loading {
				m.loadErr = msg.err
			} else {
				m.status = perrors.UserMessage(msg.err)
			}
		}
		m.clamp()
		return m, nil

	case tea.WindowSizeMsg:
		m.Height = msg.Height - 10
		if m.Height < 5 {
			m.Height = 5
		}
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m BoardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	}
	if m.snap.State != screen.Loaded {
		return m, nil
	}

	switch key {
	case "tab":
		if m.Cursor < len(m.snap.Visible)-1 {
			m.Cursor++
		}
		m.clamp()
		return m, nil
	case "shift+tab":
		if m.Cursor > 0 {
			m.Cursor--
		}
		m.clamp()
		return m, nil
	case "]":
		if m.TagFocus < len(m.snap.Tags)-1 {
			m.TagFocus++
		}
		return m, nil
	case "[":
		if m.TagFocus > 0 {
			m.TagFocus--
		}
		return m, nil
	case "a":
		return m, m.intent("add", func(e *board.Engine) error {
			e.AddPlaceholder()
			return nil
		})
	case "c":
		return m, m.intent("clear", func(e *board.Engine) error {
			e.ClearSelection()
			return nil
		})
	case "x":
		if m.TagFocus >= len(m.snap.Tags) {
			return m, nil
		}
		tag := m.snap.Tags[m.TagFocus]
		return m, m.intent("remove_tag", func(e *board.Engine) error {
			e.RemoveTagFromUniverse(tag)
			return nil
		})
	}

	if n := tagKey(key); n > 0 {
		if n > len(m.snap.Tags) {
			return m, nil
		}
		tag := m.snap.Tags[n-1]
		m.TagFocus = n - 1
		return m, m.intent("toggle", func(e *board.Engine) error {
			e.ToggleTag(tag)
			return nil
		})
	}

	ent, ok := m.focused()
	if !ok {
		return m, nil
	}
	id := ent.ID
	var dx, dy float64
	switch key {
	case "up", "k":
		dy = -moveStep
	case "down", "j":
		dy = moveStep
	case "left", "h":
		dx = -moveStep
	case "right", "l":
		dx = moveStep
	case "+", "=":
		width := ent.Size.Width * resizeScale
		return m, m.intent("resize", func(e *board.Engine) error { return e.ApplyResize(id, width) })
	case "-":
		width := ent.Size.Width / resizeScale
		return m, m.intent("resize", func(e *board.Engine) error { return e.ApplyResize(id, width) })
	default:
		return m, nil
	}
	pos := board.Position{X: ent.Position.X + dx, Y: ent.Position.Y + dy}
	return m, m.intent("move", func(e *board.Engine) error { return e.ApplyMove(id, pos) })
}

// tagKey maps "1".."9" to 1..9 and anything else to 0.
func tagKey(key string) int {
	if len(key) == 1 && key[0] >= '1' && key[0] <= '0'+maxTagKeys {
		return int(key[0] - '0')
	}
	return 0
}

func (m BoardModel) focused() (board.Entity, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.snap.Visible) {
		return board.Entity{}, false
	}
	return m.snap.Visible[m.Cursor], true
}

// clamp keeps the cursor, tag focus and scroll offset in range.
func (m *BoardModel) clamp() {
	if m.Cursor >= len(m.snap.Visible) {
		m.Cursor = len(m.snap.Visible) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.TagFocus >= len(m.snap.Tags) {
		m.TagFocus = len(m.snap.Tags) - 1
	}
	if m.TagFocus < 0 {
		m.TagFocus = 0
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

func (m BoardModel) View() string {
	switch m.snap.State {
	case screen.Loading, screen.Idle:
		if m.loadErr != nil {
			return m.errorView()
		}
		return StyleTitle.Render(m.snap.Variant) + "\n\n" + listDimStyle.Render("Loading posters...") + "\n"
	case screen.LoadFailed:
		return m.errorView()
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.snap.Variant))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d/%d posters", len(m.snap.Visible), len(m.snap.Entities))))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("tab focus  arrows move  +/- resize  1-9 filter  [/] x remove tag  a add  q quit"))
	b.WriteString("\n\n")
	b.WriteString(m.tagBar())
	b.WriteString("\n\n")

	if len(m.snap.Visible) == 0 {
		b.WriteString(listDimStyle.Render("  No posters match the selected tags"))
		b.WriteString("\n")
	}
	end := min(m.Offset+m.Height, len(m.snap.Visible))
	for i := m.Offset; i < end; i++ {
		e := m.snap.Visible[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%-3d %-24s %-12s %-16s %s",
			cursor, e.ID, e.Name, formatSize(e.Size), formatPosition(e.Position), formatTags(e.Tags, m.snap.Selected))
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(StyleWarning.Render(iconWarning + " " + m.status))
		b.WriteString("\n")
	}
	return b.String()
}

func (m BoardModel) tagBar() string {
	if len(m.snap.Tags) == 0 {
		return listDimStyle.Render("no tags")
	}
	selected := make(map[string]bool, len(m.snap.Selected))
	for _, t := range m.snap.Selected {
		selected[t] = true
	}
	chips := make([]string, len(m.snap.Tags))
	for i, t := range m.snap.Tags {
		label := t
		if i < maxTagKeys {
			label = fmt.Sprintf("%d:%s", i+1, t)
		}
		style := chipStyle
		if selected[t] {
			style = chipSelectedStyle
		}
		if i == m.TagFocus {
			style = style.Inherit(chipFocusStyle)
		}
		chips[i] = style.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func (m BoardModel) errorView() string {
	msg := "unknown error"
	if m.loadErr != nil {
		msg = perrors.UserMessage(m.loadErr)
	} else if m.snap.Error != "" {
		msg = m.snap.Error
	}
	body := styleIconError.Render(iconError) + " " + StyleTitle.Render("Error") + "\n\n" + msg
	return errorPanelStyle.Render(body) + "\n\n" + listDimStyle.Render("q quit") + "\n"
}
