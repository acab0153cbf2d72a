// Package tui renders a chatbot.Conversation as a Bubble Tea terminal widget.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

const (
	maxInputLines  = 5
	defaultWidth   = 60
	defaultHeight  = 24
	bubbleMaxRatio = 0.8
)

// Options tweak presentation.
type Options struct {
	// ShowRemaining renders "N messages left" under the message list.
	ShowRemaining bool
	// GlamourStyle names a glamour standard style; empty picks one from the terminal background.
	GlamourStyle string
}

// exchangeDoneMsg is delivered when Conversation.Run returns.
type exchangeDoneMsg struct {
	snapshot chatbot.Snapshot
	err      error
}

// Model is the Bubble Tea model of the widget.
type Model struct {
	conv  *chatbot.Conversation
	props chatbot.Props
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	keys     keyMap
	styles   styles
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	description string
	snapshot    chatbot.Snapshot
	status      string
	collapsed   bool
	width       int
	height      int
}

// New builds the widget model. Cancelling ctx (or quitting) cancels the
// exchange in flight.
func New(ctx context.Context, conv *chatbot.Conversation, props chatbot.Props, opts Options) Model {
	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Type your question…"
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetHeight(1)
	ta.MaxHeight = maxInputLines
	// enter 由 keyMap 处理
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Points))

	m := Model{
		conv:     conv,
		props:    props,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		keys:     defaultKeyMap(),
		styles:   newStyles(props.Customize),
		textarea: ta,
		viewport: viewport.New(defaultWidth, defaultHeight),
		spinner:  sp,
		snapshot: conv.Snapshot(),
	}
	m.spinner.Style = m.styles.Loader
	if !props.ShowCloseButton {
		m.keys.Close.SetEnabled(false)
	}
	m.layout(defaultWidth, defaultHeight)
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles terminal events and exchange completion.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case exchangeDoneMsg:
		m.snapshot = msg.snapshot
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.status = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		// 仅在等待回答时推进加载动画
		if !m.snapshot.Busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.collapsed {
		if key.Matches(msg, m.keys.Open) {
			m.collapsed = false
			m.textarea.Focus()
			m.refresh()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Close):
		if m.props.ShowLauncher {
			m.collapsed = true
			m.textarea.Blur()
			return m, nil
		}
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Newline):
		m.textarea.InsertRune('\n')
		m.fitInput()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.fitInput()
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	ex, err := m.conv.Begin(m.textarea.Value())
	switch {
	case errors.Is(err, chatbot.ErrEmptyQuestion):
		return m, nil
	case errors.Is(err, chatbot.ErrBusy):
		m.status = "Please wait for the current answer."
		return m, nil
	case err != nil:
		m.status = err.Error()
		return m, nil
	}

	m.status = ""
	m.textarea.Reset()
	m.fitInput()
	m.snapshot = m.conv.Snapshot()
	m.refresh()

	conv, ctx := m.conv, m.ctx
	run := func() tea.Msg {
		snap, err := conv.Run(ctx, ex)
		return exchangeDoneMsg{snapshot: snap, err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// fitInput grows the textarea with its content up to maxInputLines.
func (m *Model) fitInput() {
	lines := min(max(m.textarea.LineCount(), 1), maxInputLines)
	if lines != m.textarea.Height() {
		m.textarea.SetHeight(lines)
		m.layout(m.width, m.height)
	}
}

func (m *Model) layout(width, height int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	widthChanged := width != m.width
	m.width, m.height = width, height

	if widthChanged || m.description == "" {
		m.description = m.renderDescription(width - 2)
	}

	m.textarea.SetWidth(width - 2)

	chrome := lipgloss.Height(m.headerView()) + m.textarea.Height() + 2 + 1
	if m.opts.ShowRemaining {
		chrome++
	}
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 3)
	m.refresh()
}

func (m Model) renderDescription(width int) string {
	desc := strings.TrimSpace(m.props.Customize.Description)
	if desc == "" {
		return ""
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width, 20))}
	if m.opts.GlamourStyle != "" {
		opts = append(opts, glamour.WithStandardStyle(m.opts.GlamourStyle))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return desc
	}
	out, err := renderer.Render(desc)
	if err != nil {
		return desc
	}
	return strings.Trim(out, "\n")
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.messagesView())
	m.viewport.GotoBottom()
}

func (m Model) messagesView() string {
	bubbleWidth := max(int(float64(m.viewport.Width)*bubbleMaxRatio), 10)

	var b strings.Builder
	for _, msg := range m.snapshot.Messages {
		style := m.styles.bubble(msg.Type)
		text := msg.Text
		if msg.IsLoading {
			text = m.spinner.View()
		}

		if lipgloss.Width(text)+style.GetHorizontalPadding() > bubbleWidth {
			style = style.Width(bubbleWidth)
		}
		rendered := style.Render(text)
		align := lipgloss.Left
		if msg.Type == chatbot.TypeUser {
			align = lipgloss.Right
		}
		b.WriteString(lipgloss.PlaceHorizontal(m.viewport.Width, align, rendered))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) headerView() string {
	width := max(m.width, defaultWidth)
	heading := m.props.Customize.Heading
	if heading == "" {
		heading = "Chat"
	}

	title := m.styles.Heading.Render(heading)
	if m.props.ShowCloseButton {
		hint := "esc ✕"
		gap := max(width-2-lipgloss.Width(title)-lipgloss.Width(hint), 1)
		title += strings.Repeat(" ", gap) + hint
	}

	lines := []string{title}
	if m.description != "" {
		lines = append(lines, m.description)
	}
	return m.styles.Header.Width(width).Render(strings.Join(lines, "\n"))
}

// View renders the widget, or just the launcher when collapsed.
func (m Model) View() string {
	if m.collapsed {
		heading := m.props.Customize.Heading
		if heading == "" {
			heading = "Chat"
		}
		launcher := m.styles.Launcher.Render("💬 " + heading)
		return lipgloss.PlaceHorizontal(max(m.width, defaultWidth), lipgloss.Right, launcher) + "\n" +
			m.styles.Hint.Render(helpLine(m.keys.Open, m.keys.Quit))
	}

	sections := []string{m.headerView(), m.viewport.View()}
	if m.opts.ShowRemaining {
		sections = append(sections, m.styles.Remaining.Render(fmt.Sprintf("%d messages left", m.snapshot.Remaining)))
	}
	sections = append(sections, m.styles.Input.Render(m.textarea.View()))

	hint := helpLine(m.keys.Submit, m.keys.Newline, m.keys.Close, m.keys.Quit)
	if m.status != "" {
		hint = m.status
	}
	sections = append(sections, m.styles.Hint.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Snapshot exposes the last state the model rendered.
func (m Model) Snapshot() chatbot.Snapshot { return m.snapshot }

// Collapsed reports whether the widget is folded into its launcher.
func (m Model) Collapsed() bool { return m.collapsed }
