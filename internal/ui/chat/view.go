// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lagoon-tui/internal/model"
	"github.com/jeranaias/lagoon-tui/internal/ui/styles"
	"github.com/jeranaias/lagoon-tui/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// renderChat renders the complete view.
// Layout: header (1) + chat list (1) + messages (viewport) + input (3) + status (1).
func (m Model) renderChat() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelpOverlay()
	}

	base := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderChatList(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	)

	if len(m.toasts) > 0 {
		return m.overlayToasts(base)
	}
	return base
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	title := m.theme.HeaderTitle.Render("lagoon")

	chatTitle := "no chat"
	if chat := m.snapshot.ActiveChat(); chat != nil {
		chatTitle = util.TruncateWidth(chat.DisplayTitle(), width/3)
	}

	info := m.theme.StatusValue.Render(
		" | " + chatTitle + " | " + m.snapshot.Settings.Model,
	)

	var statusIcon string
	if m.streaming() {
		statusIcon = lipgloss.NewStyle().
			Foreground(styles.Amber).
			Render(" " + styles.StatusIndicators.Active)
	} else {
		statusIcon = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Render(" " + styles.StatusIndicators.Success)
	}

	return m.theme.Header.Width(width).Render(title + info + statusIcon)
}

// =============================================================================
// CHAT LIST
// =============================================================================

// renderChatList shows all chats on one line, active chat highlighted.
func (m Model) renderChatList() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	if len(m.snapshot.Chats) == 0 {
		return m.theme.StatusValue.Width(width).Render(" (no chats yet)")
	}

	var parts []string
	for i := range m.snapshot.Chats {
		chat := &m.snapshot.Chats[i]
		label := fmt.Sprintf("%d:%s", chat.Order, util.TruncateWidth(chat.DisplayTitle(), 20))
		if chat.ID == m.snapshot.ActiveChatID {
			parts = append(parts, m.theme.ChatItemActive.Render(label))
		} else {
			parts = append(parts, m.theme.ChatItem.Render(label))
		}
	}

	line := " " + strings.Join(parts, "  ")
	return lipgloss.NewStyle().Width(width).MaxHeight(1).Render(line)
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderMessages renders the active chat's transcript for the viewport.
func (m Model) renderMessages() string {
	chat := m.snapshot.ActiveChat()
	if chat == nil || len(chat.Messages) == 0 {
		return m.renderEmptyState()
	}

	var parts []string
	for i := range chat.Messages {
		parts = append(parts, m.renderMessage(&chat.Messages[i]))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg *model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}

	timestamp := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	header := label + " " + timestamp

	if msg.Loading && msg.IsEmpty() {
		return header + "\n" + m.renderThinking()
	}

	body := msg.Content
	if msg.Loading {
		// Streaming text gets a cursor block at the tail.
		body += "▌"
	} else if msg.Role == model.RoleAssistant && m.markdown != nil {
		if rendered, err := m.markdown.Render(msg.Content); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}

	return header + "\n" + m.theme.MessageBody.Render(body)
}

func (m Model) renderThinking() string {
	return m.theme.Spinner.Render(m.spinner.View()) +
		m.theme.ThinkingText.Render(" thinking...")
}

func (m Model) renderEmptyState() string {
	lines := []string{
		"",
		m.theme.HeaderTitle.Render("  lagoon"),
		"",
		m.theme.ThinkingText.Render("  Type a message and press Enter to start a chat."),
		m.theme.ThinkingText.Render("  Ctrl+H shows all keyboard shortcuts."),
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// INPUT AREA
// =============================================================================

func (m Model) renderInput() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	separator := m.theme.InputSeparator.Render(strings.Repeat("─", width))

	count := fmt.Sprintf("%d/%d", len(m.input.Value()), m.input.CharLimit)
	charCount := m.theme.CharCount.Width(width).Align(lipgloss.Right).Render(count)

	return separator + "\n " + m.input.View() + "\n" + charCount
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var segments []string

	if m.streaming() {
		segments = append(segments, m.theme.StatusKey.Render("streaming"))
	} else {
		segments = append(segments, m.theme.StatusValue.Render("ready"))
	}

	if chat := m.snapshot.ActiveChat(); chat != nil {
		if m.opts.ShowTokens {
			segments = append(segments, m.theme.StatusValue.Render(
				fmt.Sprintf("tok %s/%s",
					formatTokens(chat.PromptTokensUsed),
					formatTokens(chat.CompletionTokensUsed)),
			))
		}
		if m.opts.ShowCost {
			segments = append(segments, m.theme.CostValue.Render(formatCost(chat.CostIncurred)))
		}
	}

	hints := make([]string, 0, 4)
	for _, b := range m.keyMap.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.StatusKey.Render(h.Key)+" "+m.theme.StatusValue.Render(h.Desc))
	}
	segments = append(segments, strings.Join(hints, "  "))

	return m.theme.StatusBar.Width(width).MaxHeight(1).Render(strings.Join(segments, " | "))
}

// =============================================================================
// HELP OVERLAY
// =============================================================================

func (m Model) renderHelpOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, group := range m.keyMap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				m.theme.StatusKey.Render(fmt.Sprintf("%-12s", h.Key)),
				m.theme.StatusValue.Render(h.Desc)))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.theme.ThinkingText.Render("  Press Ctrl+H or Esc to close."))

	return lipgloss.Place(
		max(m.width, 1), max(m.height, 1),
		lipgloss.Left, lipgloss.Top,
		b.String(),
	)
}

// =============================================================================
// TOAST OVERLAY
// =============================================================================

// overlayToasts paints notifications over the bottom-right corner of the
// base view without changing its height.
func (m Model) overlayToasts(base string) string {
	var rendered []string
	for _, t := range m.toasts {
		rendered = append(rendered, m.theme.Toast.Render(util.TruncateWidth(t.text, m.width-6)))
	}
	overlay := strings.Join(rendered, "\n")
	overlayLines := strings.Split(overlay, "\n")

	baseLines := strings.Split(base, "\n")

	// Leave the input area and status bar visible below the toasts.
	startRow := len(baseLines) - len(overlayLines) - 5
	if startRow < 0 {
		startRow = 0
	}

	for i, line := range overlayLines {
		row := startRow + i
		if row >= len(baseLines) {
			break
		}
		lineWidth := lipgloss.Width(line)
		pad := m.width - lineWidth
		if pad < 0 {
			pad = 0
		}
		baseLines[row] = strings.Repeat(" ", pad) + line
	}

	return strings.Join(baseLines, "\n")
}
