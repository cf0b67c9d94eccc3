// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The view owns no chat state of its own: the submission engine mutates
// the session store from its streaming goroutines, and the view re-reads
// a store snapshot on a 30fps tick. Key handling translates directly
// into engine calls (Submit, AbortCurrentRequest, Regenerate) and store
// actions (chat selection), never into local mutation.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/lagoon-tui/internal/engine"
	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/notify"
	"github.com/jeranaias/lagoon-tui/internal/store"
	"github.com/jeranaias/lagoon-tui/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options carries display preferences from the config file.
type Options struct {
	ShowCost   bool
	ShowTokens bool
	Markdown   bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	store    *store.Store
	engine   *engine.Engine
	recorder *notify.Recorder
	theme    *styles.Theme
	opts     Options

	// Dimensions
	width  int
	height int

	// Last snapshot read from the store. Refreshed on every tick and
	// after every key press so the view never renders stale state.
	snapshot store.State

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keyMap   KeyMap

	// Markdown renderer, rebuilt on resize to track the word-wrap width.
	markdown *glamour.TermRenderer

	// Rendered viewport content from the previous frame. SetContent is
	// skipped when nothing changed, which keeps idle frames cheap.
	lastContent string

	// Transient notifications drained from the recorder.
	toasts []toast

	showHelp bool
}

// New creates a new chat model wired to the store and engine.
func New(st *store.Store, eng *engine.Engine, rec *notify.Recorder, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    refreshRate,
	}

	return Model{
		store:    st,
		engine:   eng,
		recorder: rec,
		theme:    theme,
		opts:     opts,
		snapshot: st.Get(),
		viewport: vp,
		input:    ti,
		spinner:  sp,
		keyMap:   DefaultKeyMap(),
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tickCmd())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		return m.handleTick()

	case SubmitFinishedMsg:
		if msg.Err != nil {
			m.pushToast(msg.Err.Error())
		}
		return m, nil

	case ToastMsg:
		m.pushToast(msg.Text)
		return m, nil

	case spinner.TickMsg:
		if m.streaming() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		// Keep the spinner ticking so it is live when streaming starts.
		return m, m.spinner.Tick

	default:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// TICK HANDLING
// =============================================================================

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	m.snapshot = m.store.Get()
	m.drainToasts()
	m.expireToasts()

	// Re-render only when the conversation actually changed.
	content := m.renderMessages()
	if content != m.lastContent {
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(content)
		m.lastContent = content
		// Follow the stream unless the user scrolled away.
		if atBottom || m.streaming() {
			m.viewport.GotoBottom()
		}
	}

	return m, tickCmd()
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Re-read state before acting so key decisions see current reality.
	m.snapshot = m.store.Get()

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.engine.AbortCurrentRequest()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Cancel):
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.streaming() {
			m.engine.AbortCurrentRequest()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, submitCmd(m.engine, text)

	case key.Matches(msg, m.keyMap.Regenerate):
		return m.regenerateLast()

	case key.Matches(msg, m.keyMap.NewChat):
		// Deselect: the next submission creates a fresh chat.
		m.store.SetActiveChat("")
		return m, nil

	case key.Matches(msg, m.keyMap.NextChat):
		m.cycleChat(1)
		return m, nil

	case key.Matches(msg, m.keyMap.PrevChat):
		m.cycleChat(-1)
		return m, nil

	case key.Matches(msg, m.keyMap.DeleteChat):
		if m.snapshot.ActiveChatID != "" {
			m.engine.AbortCurrentRequest()
			m.store.DeleteChat(m.snapshot.ActiveChatID)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Home):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keyMap.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// regenerateLast re-runs the exchange behind the newest assistant
// message in the active chat.
func (m Model) regenerateLast() (tea.Model, tea.Cmd) {
	chat := m.snapshot.ActiveChat()
	if chat == nil || m.streaming() {
		return m, nil
	}
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		if chat.Messages[i].Role == model.RoleAssistant && !chat.Messages[i].Loading {
			return m, regenerateCmd(m.engine, chat.Messages[i].ID)
		}
	}
	return m, nil
}

// cycleChat moves the active selection forward or backward through the
// chat list, wrapping at the ends.
func (m *Model) cycleChat(step int) {
	n := len(m.snapshot.Chats)
	if n == 0 {
		return
	}
	idx := 0
	for i := range m.snapshot.Chats {
		if m.snapshot.Chats[i].ID == m.snapshot.ActiveChatID {
			idx = (i + step + n) % n
			break
		}
	}
	m.store.SetActiveChat(m.snapshot.Chats[idx].ID)
	m.snapshot = m.store.Get()
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Fixed chrome: header (1) + chat list (1) + input area (3) + status (1).
	const reservedHeight = 6

	viewportHeight := m.height - reservedHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = viewportHeight

	const promptLen = 2 // "> "
	inputWidth := m.width - 4 - promptLen
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}

	// Rebuild the markdown renderer at the new wrap width.
	if m.opts.Markdown {
		wrap := m.width - 6
		if wrap < 20 {
			wrap = 20
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		); err == nil {
			m.markdown = r
		}
	}

	// Force a re-render at the new width.
	m.lastContent = ""

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// HELPERS
// =============================================================================

func (m Model) streaming() bool {
	return m.snapshot.APIState == store.APIStateLoading
}
