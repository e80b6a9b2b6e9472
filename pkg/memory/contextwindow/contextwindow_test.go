package contextwindow_test

import (
	"strings"
	"testing"

	"github.com/danja/semem/pkg/memory/contextwindow"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 100, 0.1, 4)
	if got := m.EstimateTokens("12345678"); got != 2 {
		t.Errorf("EstimateTokens(8 chars) = %d, want 2", got)
	}
	if got := m.EstimateTokens("123456789"); got != 3 {
		t.Errorf("EstimateTokens(9 chars) = %d, want 3 (ceil)", got)
	}
}

func TestWindowSize_ClampsToBounds(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 50, 0.1, 4)
	if got := m.WindowSize("a"); got != 10 {
		t.Errorf("WindowSize(tiny) = %d, want clamped to min 10", got)
	}

	big := strings.Repeat("x", 1000)
	if got := m.WindowSize(big); got != 50 {
		t.Errorf("WindowSize(huge) = %d, want clamped to max 50", got)
	}
}

func TestCreateWindows_SingleWindowWhenTextFits(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 100, 0.2, 4)
	windows := m.CreateWindows("the quick brown fox jumps", 10)
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1 (text fits in one window)", len(windows))
	}
	if windows[0].Text != "the quick brown fox jumps" {
		t.Errorf("window text = %q", windows[0].Text)
	}
}

func TestCreateWindows_MultipleWindowsWithOverlap(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(5, 5, 0.2, 1) // windowChars = 5*1 = 5
	text := strings.Repeat("0123456789", 3) // 30 chars
	windows := m.CreateWindows(text, 5)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	last := windows[len(windows)-1]
	if last.End != len(text) {
		t.Errorf("last window End = %d, want %d (tail coverage)", last.End, len(text))
	}
}

// TestMerge_ReconstructsWordBoundaryOverlap mirrors the spec's scenario 5.
func TestMerge_ReconstructsWordBoundaryOverlap(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 10, 0.2, 1)
	text := "the quick brown fox jumps"
	windows := m.CreateWindows(text, 10)
	merged := m.Merge(windows)
	if merged != text {
		t.Errorf("Merge(CreateWindows(t)) = %q, want %q", merged, text)
	}
}

func TestMerge_SingleWindow(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 100, 0.1, 4)
	windows := []contextwindow.Window{{Text: "hello world", Start: 0, End: 11}}
	if got := m.Merge(windows); got != "hello world" {
		t.Errorf("Merge(single) = %q", got)
	}
}

func TestMerge_EmptyWindows(t *testing.T) {
	t.Parallel()
	m := contextwindow.New(10, 100, 0.1, 4)
	if got := m.Merge(nil); got != "" {
		t.Errorf("Merge(nil) = %q, want empty", got)
	}
}
