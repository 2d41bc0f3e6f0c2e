// Package ui renders terminal output for the countsync CLI.
package ui

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ShouldUseColor follows NO_COLOR and CLICOLOR_FORCE, and otherwise colors
// only when stdout is a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Adaptive colors work on light and dark backgrounds.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#8C8FA1", Dark: "#6C7086"}
)

var (
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
	LabelStyle  = lipgloss.NewStyle().Foreground(ColorMuted).Width(16)
)

func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }

// Field renders an aligned "label value" line.
func Field(label string, value any) string {
	return LabelStyle.Render(label) + fmt.Sprint(value)
}

// Counts renders a map of counts as "a=1 b=2", sorted by key, with non-zero
// values highlighted.
func Counts[K ~string](counts map[K]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		n := counts[K(k)]
		v := fmt.Sprint(n)
		if n > 0 {
			v = RenderWarn(v)
		}
		parts = append(parts, k+"="+v)
	}
	if len(parts) == 0 {
		return RenderMuted("none")
	}
	return strings.Join(parts, " ")
}
