// Package contextassembler prunes, groups, and summarizes retrieved
// interactions into a single bounded string suitable for prompting an LLM,
// falling back to the Context Window Manager's sliding-window merge when
// the assembled text exceeds a token budget.
package contextassembler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/contextwindow"
)

// recentSimilarity is the fixed similarity attached to recent (non-retrieved)
// interactions ingested into the buffer.
const recentSimilarity = 0.9

// BufferEntry is one item held in the Context Buffer.
type BufferEntry struct {
	Interaction *memory.Interaction
	Similarity  float64
	AddedAt     time.Time
}

// Options configures a single BuildContext call.
type Options struct {
	// MaxTimeWindow bounds buffer entry age; entries older than this are
	// pruned.
	MaxTimeWindow time.Duration

	// RelevanceThreshold is the minimum similarity a buffer entry must hold
	// to survive pruning.
	RelevanceThreshold float64

	// MaxContextSize is the post-prune buffer length cap.
	MaxContextSize int

	// MaxTokens is the token budget for the assembled context string.
	MaxTokens int

	// TruncationLimit, if > 0, caps the output text of each bullet in a
	// multi-member concept group to this many characters, appending "..."
	// when truncated. Singleton Q/A pairs are not truncated.
	TruncationLimit int

	// SystemContext, if non-empty, is emitted as a leading header.
	SystemContext string
}

// Assembler owns the Context Buffer and builds assembled context strings
// from it across calls. Not safe for concurrent use; callers serialize
// access (the Memory Manager facade owns exactly one Assembler).
type Assembler struct {
	buffer []BufferEntry
	window *contextwindow.Manager
	nowFn  func() time.Time
}

// New returns an empty Assembler using window for token-budget overflow
// handling.
func New(window *contextwindow.Manager) *Assembler {
	return &Assembler{window: window, nowFn: time.Now}
}

// BuildContext prunes the buffer, ingests retrievals and recentInteractions,
// summarizes the result, and assembles a final context string, re-windowing
// through the Context Window Manager if it exceeds opts.MaxTokens. Returns
// the empty string only when there is truly no content to report.
func (a *Assembler) BuildContext(currentPrompt string, retrievals []BufferEntry, recentInteractions []*memory.Interaction, opts Options) string {
	now := a.nowFn()
	a.prune(now, opts)
	a.ingest(now, retrievals, recentInteractions)

	limit := opts.MaxContextSize
	if limit > len(a.buffer) {
		limit = len(a.buffer)
	}
	if limit < 0 {
		limit = 0
	}
	summary := a.summarize(a.buffer[:limit], opts.TruncationLimit)

	var parts []string
	if opts.SystemContext != "" {
		parts = append(parts, "System Context: "+opts.SystemContext)
	}
	if summary != "" {
		parts = append(parts, "Relevant Context:\n"+summary)
	}
	full := strings.Join(parts, "\n\n")
	if full == "" {
		return ""
	}

	if a.window != nil && a.window.EstimateTokens(full) > opts.MaxTokens && opts.MaxTokens > 0 {
		windows := a.window.CreateWindows(full, a.window.WindowSize(full))
		return a.window.Merge(windows)
	}
	return full
}

// prune evicts buffer entries older than opts.MaxTimeWindow or less
// similar than opts.RelevanceThreshold, then sorts the remainder by
// descending similarity and truncates to opts.MaxContextSize.
func (a *Assembler) prune(now time.Time, opts Options) {
	kept := a.buffer[:0]
	for _, e := range a.buffer {
		if opts.MaxTimeWindow > 0 && now.Sub(e.AddedAt) > opts.MaxTimeWindow {
			continue
		}
		if e.Similarity < opts.RelevanceThreshold {
			continue
		}
		kept = append(kept, e)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if opts.MaxContextSize >= 0 && len(kept) > opts.MaxContextSize {
		kept = kept[:opts.MaxContextSize]
	}
	a.buffer = kept
}

// ingest appends retrievals (with their own similarity) and
// recentInteractions (with a fixed high similarity) to the buffer, all
// stamped with the current instant.
func (a *Assembler) ingest(now time.Time, retrievals []BufferEntry, recentInteractions []*memory.Interaction) {
	for _, r := range retrievals {
		r.AddedAt = now
		a.buffer = append(a.buffer, r)
	}
	for _, ia := range recentInteractions {
		a.buffer = append(a.buffer, BufferEntry{Interaction: ia, Similarity: recentSimilarity, AddedAt: now})
	}
}

// summarize groups entries by primary concept (concepts[0], or "general"
// if the interaction has no concepts), emitting a bare Q/A pair for
// singleton groups and a "Topic:" block (first 5 members) for multi-member
// groups. Group order follows first appearance in entries.
func (a *Assembler) summarize(entries []BufferEntry, truncationLimit int) string {
	if len(entries) == 0 {
		return ""
	}

	var order []string
	groups := make(map[string][]BufferEntry)
	for _, e := range entries {
		topic := "general"
		if len(e.Interaction.Concepts) > 0 {
			topic = e.Interaction.Concepts[0]
		}
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], e)
	}

	var blocks []string
	for _, topic := range order {
		members := groups[topic]
		if len(members) == 1 {
			ia := members[0].Interaction
			blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", ia.Prompt, ia.Output))
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Topic: %s", topic)
		for _, m := range members[:min(5, len(members))] {
			fmt.Fprintf(&b, "\n- %s → %s", m.Interaction.Prompt, truncate(m.Interaction.Output, truncationLimit))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// truncate returns output unchanged when limit <= 0 or output is no longer
// than limit; otherwise it returns the first limit characters followed by
// "...".
func truncate(output string, limit int) string {
	if limit <= 0 || len(output) <= limit {
		return output
	}
	return output[:limit] + "..."
}
