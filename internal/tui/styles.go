package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mazznoer/csscolorparser"

	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

// NormalizeColor converts any CSS colour (named, hex, rgb(), hsl(), ...)
// into a hex colour lipgloss understands. Alpha is dropped. Values that do
// not parse yield "".
func NormalizeColor(css string) lipgloss.Color {
	css = strings.TrimSpace(css)
	if css == "" {
		return ""
	}
	c, err := csscolorparser.Parse(css)
	if err != nil {
		return ""
	}
	r, g, b, _ := c.RGBA255()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}

type styles struct {
	Header    lipgloss.Style
	Heading   lipgloss.Style
	Hint      lipgloss.Style
	Remaining lipgloss.Style
	Input     lipgloss.Style
	Launcher  lipgloss.Style
	Loader    lipgloss.Style
	Bubbles   map[chatbot.Type]lipgloss.Style
	fallback  lipgloss.Style
}

func newStyles(c chatbot.Customize) styles {
	base := lipgloss.NewStyle().Padding(0, 1).MarginBottom(1)
	userColors := chatbot.Colors(chatbot.TypeUser, c)

	header := lipgloss.NewStyle().Padding(0, 1)
	if bg := NormalizeColor(userColors.Background); bg != "" {
		header = header.Background(bg)
	}
	if fg := NormalizeColor(userColors.Foreground); fg != "" {
		header = header.Foreground(fg)
	}

	bubbles := make(map[chatbot.Type]lipgloss.Style, 3)
	for _, t := range []chatbot.Type{chatbot.TypeBot, chatbot.TypeBotError, chatbot.TypeUser} {
		colors := chatbot.Colors(t, c)
		s := base
		if bg := NormalizeColor(colors.Background); bg != "" {
			s = s.Background(bg)
		} else {
			s = s.Background(lipgloss.AdaptiveColor{Light: "#f1f1f1", Dark: "#3a3a3a"})
		}
		if fg := NormalizeColor(colors.Foreground); fg != "" {
			s = s.Foreground(fg)
		}
		bubbles[t] = s
	}

	loader := lipgloss.NewStyle()
	if bg := NormalizeColor(c.BackgroundColor); bg != "" {
		loader = loader.Foreground(bg)
	}

	return styles{
		Header:    header,
		Heading:   lipgloss.NewStyle().Bold(true),
		Hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Remaining: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),
		Input:     lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")),
		Launcher:  header.Padding(0, 2).Bold(true),
		Loader:    loader,
		Bubbles:   bubbles,
		fallback:  base,
	}
}

func (s styles) bubble(t chatbot.Type) lipgloss.Style {
	if st, ok := s.Bubbles[t]; ok {
		return st
	}
	return s.fallback
}
