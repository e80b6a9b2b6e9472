// Package contextwindow provides token estimation, sliding-window
// splitting with overlap, and overlap-aware window merging for the
// Context Assembler.
package contextwindow

import (
	"math"
	"strings"
)

// windowSizeMultiplier is applied to a raw token estimate to leave headroom
// before clamping into [min_window, max_window].
const windowSizeMultiplier = 1.2

// Window is a contiguous slice of a larger text, produced by CreateWindows.
type Window struct {
	Text  string
	Start int
	End   int
}

// Manager holds the sliding-window configuration shared by EstimateTokens,
// WindowSize, CreateWindows, and Merge.
type Manager struct {
	// MinWindow and MaxWindow bound the window size, in tokens.
	MinWindow, MaxWindow int

	// OverlapRatio is the fraction of a window's size used as overlap
	// between consecutive windows, in [0, 0.5].
	OverlapRatio float64

	// AvgTokenLen is the assumed average character length of one token,
	// used by the char-count token-estimation heuristic.
	AvgTokenLen int
}

// New returns a Manager with the given configuration.
func New(minWindow, maxWindow int, overlapRatio float64, avgTokenLen int) *Manager {
	return &Manager{MinWindow: minWindow, MaxWindow: maxWindow, OverlapRatio: overlapRatio, AvgTokenLen: avgTokenLen}
}

// EstimateTokens approximates the token count of text as
// ceil(len(text)/AvgTokenLen).
func (m *Manager) EstimateTokens(text string) int {
	if m.AvgTokenLen <= 0 {
		return len(text)
	}
	return int(math.Ceil(float64(len(text)) / float64(m.AvgTokenLen)))
}

// WindowSize returns the recommended window size, in tokens, for text:
// estimate_tokens(text) * 1.2, clamped into [MinWindow, MaxWindow].
func (m *Manager) WindowSize(text string) int {
	raw := int(math.Ceil(float64(m.EstimateTokens(text)) * windowSizeMultiplier))
	return clamp(raw, m.MinWindow, m.MaxWindow)
}

// CreateWindows splits text into overlapping windows of approximately W
// tokens (converted to characters via AvgTokenLen), with stride
// S = W - floor(W*OverlapRatio). Windows start at 0, S, 2S, … until the
// start reaches the end of text; if the last emitted window does not
// reach the end of text, a final tail-only window is appended.
func (m *Manager) CreateWindows(text string, windowTokens int) []Window {
	n := len(text)
	if n == 0 {
		return nil
	}

	windowChars := windowTokens * m.AvgTokenLen
	if windowChars <= 0 {
		windowChars = n
	}
	strideTokens := windowTokens - int(math.Floor(float64(windowTokens)*m.OverlapRatio))
	strideChars := strideTokens * m.AvgTokenLen
	if strideChars <= 0 {
		strideChars = windowChars
	}

	var windows []Window
	pos := 0
	for pos < n {
		end := pos + windowChars
		if end > n {
			end = n
		}
		windows = append(windows, Window{Text: text[pos:end], Start: pos, End: end})
		if end == n {
			break
		}
		pos += strideChars
	}

	if len(windows) > 0 {
		last := windows[len(windows)-1]
		if last.End < n {
			windows = append(windows, Window{Text: text[last.End:n], Start: last.End, End: n})
		}
	}
	return windows
}

// Merge reconstructs a single string from windows by, for each consecutive
// pair, finding the best overlap between the suffix of the running result
// (bounded to MaxWindow characters) and the prefix of the incoming
// window's text, then appending only the incoming text's non-overlapping
// suffix. Overlap search prefers the largest match whose boundary falls on
// whitespace; failing that, the largest exact character-level match;
// failing that, no overlap.
func (m *Manager) Merge(windows []Window) string {
	if len(windows) == 0 {
		return ""
	}
	result := windows[0].Text
	minOverlap := int(float64(m.MinWindow) * m.OverlapRatio)

	for i := 1; i < len(windows); i++ {
		next := windows[i].Text
		suffixBound := m.MaxWindow
		if suffixBound > len(result) {
			suffixBound = len(result)
		}
		suffix := result[len(result)-suffixBound:]

		overlap := findOverlap(suffix, next, minOverlap)
		result += next[overlap:]
	}
	return result
}

// findOverlap returns the length of the best overlap between the suffix of
// suffix and the prefix of next, searching candidate sizes from the
// largest down to minOverlap. A word-boundary match (overlap boundary
// adjacent to whitespace on both sides) is preferred; if none exists, the
// largest exact character match is accepted; if no match reaches
// minOverlap, 0 is returned.
func findOverlap(suffix, next string, minOverlap int) int {
	maxLen := len(suffix)
	if len(next) < maxLen {
		maxLen = len(next)
	}
	if minOverlap < 0 {
		minOverlap = 0
	}

	for size := maxLen; size >= minOverlap && size > 0; size-- {
		if suffix[len(suffix)-size:] == next[:size] && isWordBoundary(suffix, len(suffix)-size) && isWordBoundary(next, size) {
			return size
		}
	}
	for size := maxLen; size >= minOverlap && size > 0; size-- {
		if suffix[len(suffix)-size:] == next[:size] {
			return size
		}
	}
	return 0
}

// isWordBoundary reports whether idx is a valid word boundary within s:
// the start, the end, or adjacent to a whitespace rune.
func isWordBoundary(s string, idx int) bool {
	if idx <= 0 || idx >= len(s) {
		return true
	}
	return isSpace(s[idx-1]) || isSpace(s[idx])
}

func isSpace(b byte) bool {
	return strings.ContainsRune(" \t\n\r", rune(b))
}

func clamp(v, lo, hi int) int {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
