package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	textStyleColor  = lipgloss.AdaptiveColor{Light: "#36EEE0", Dark: "#00FFFF"}
	mutedStyleColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	commandStyle    = lipgloss.NewStyle().Foreground(textStyleColor)
)

func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(textStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

// Command renders a shopctl invocation.
func Command(cmd string, args ...string) string {
	cmdline := "shopctl " + strings.Join(append([]string{cmd}, args...), " ")
	return commandStyle.Render(cmdline)
}
