package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestRender_PlainProfile(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	if got := RenderPass("ok"); got != "ok" {
		t.Errorf("RenderPass() = %q, want plain text", got)
	}
	if got := Field("Pending", 3); !strings.HasPrefix(got, "Pending") || !strings.HasSuffix(got, "3") {
		t.Errorf("Field() = %q", got)
	}
}

func TestCounts(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	type kind string
	got := Counts(map[kind]int{"transfer": 0, "asset": 2, "inventory": 5})
	if got != "asset=2 inventory=5 transfer=0" {
		t.Errorf("Counts() = %q", got)
	}
	if got := Counts(map[kind]int{}); got != "none" {
		t.Errorf("Counts(empty) = %q", got)
	}
}

func TestShouldUseColor_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR must win")
	}
}
