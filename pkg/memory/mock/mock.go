// Package mock provides in-memory test doubles for the external memory
// engine collaborator interfaces ([memory.ChatProvider], [memory.Storage],
// [memory.PromptTemplates]).
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe
// for concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	chat := &mock.ChatProvider{}
//	chat.ChatResult = "hello there"
//
//	// inject chat into the system under test …
//
//	if got := chat.CallCount("Chat"); got != 1 {
//	    t.Errorf("expected 1 Chat call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/danja/semem/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// ─────────────────────────────────────────────────────────────────────────────
// ChatProvider mock
// ─────────────────────────────────────────────────────────────────────────────

// ChatProvider is a configurable test double for [memory.ChatProvider].
// All exported *Err fields default to nil (success).
type ChatProvider struct {
	mu sync.Mutex

	calls []Call

	// ChatResult is returned by [ChatProvider.Chat].
	ChatResult string
	// ChatErr is returned by [ChatProvider.Chat] when non-nil.
	ChatErr error

	// CompletionResult is returned by [ChatProvider.Completion].
	CompletionResult string
	// CompletionErr is returned by [ChatProvider.Completion] when non-nil.
	CompletionErr error

	// EmbedResult is returned by [ChatProvider.Embed].
	EmbedResult []float32
	// EmbedErr is returned by [ChatProvider.Embed] when non-nil.
	EmbedErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *ChatProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *ChatProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *ChatProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Chat implements [memory.ChatProvider].
func (m *ChatProvider) Chat(_ context.Context, model string, messages []memory.ChatMessage, opts memory.ChatOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Chat", Args: []any{model, messages, opts}})
	return m.ChatResult, m.ChatErr
}

// Completion implements [memory.ChatProvider].
func (m *ChatProvider) Completion(_ context.Context, model, prompt string, opts memory.ChatOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Completion", Args: []any{model, prompt, opts}})
	return m.CompletionResult, m.CompletionErr
}

// Embed implements [memory.ChatProvider].
func (m *ChatProvider) Embed(_ context.Context, model, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Embed", Args: []any{model, text}})
	return m.EmbedResult, m.EmbedErr
}

// Ensure ChatProvider satisfies the interface at compile time.
var _ memory.ChatProvider = (*ChatProvider)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Storage mock
// ─────────────────────────────────────────────────────────────────────────────

// Storage is a configurable test double for [memory.Storage].
type Storage struct {
	mu sync.Mutex

	calls []Call

	// LoadHistoryShortTerm and LoadHistoryLongTerm are returned by
	// [Storage.LoadHistory].
	LoadHistoryShortTerm []*memory.Interaction
	LoadHistoryLongTerm  []*memory.Interaction
	// LoadHistoryErr is returned by [Storage.LoadHistory] when non-nil.
	LoadHistoryErr error

	// SaveErr is returned by [Storage.Save] when non-nil.
	SaveErr error
	// SavedSnapshots records every snapshot passed to Save, in order.
	SavedSnapshots []memory.StoreSnapshot

	// CloseErr is returned by [Storage.Close] when non-nil.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Storage) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Storage) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Storage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// LoadHistory implements [memory.Storage].
func (m *Storage) LoadHistory(_ context.Context) ([]*memory.Interaction, []*memory.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LoadHistory"})
	return m.LoadHistoryShortTerm, m.LoadHistoryLongTerm, m.LoadHistoryErr
}

// Save implements [memory.Storage].
func (m *Storage) Save(_ context.Context, snapshot memory.StoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Save", Args: []any{snapshot}})
	m.SavedSnapshots = append(m.SavedSnapshots, snapshot)
	return m.SaveErr
}

// Close implements [memory.Storage].
func (m *Storage) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close"})
	return m.CloseErr
}

// Ensure Storage satisfies the interface at compile time.
var _ memory.Storage = (*Storage)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// PromptTemplates mock
// ─────────────────────────────────────────────────────────────────────────────

// PromptTemplates is a configurable test double for [memory.PromptTemplates].
// Unlike the other mocks, its methods are pure functions with no error
// return, so only *Result fields are exposed.
type PromptTemplates struct {
	mu sync.Mutex

	calls []Call

	// ConceptPromptResult is returned by [PromptTemplates.ConceptPrompt].
	// When nil, a minimal single-user-message payload is returned.
	ConceptPromptResult []memory.ChatMessage

	// ChatPromptResult is returned by [PromptTemplates.ChatPrompt].
	// When nil, a minimal single-user-message payload is returned.
	ChatPromptResult []memory.ChatMessage
}

// Calls returns a copy of all recorded method invocations.
func (m *PromptTemplates) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *PromptTemplates) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *PromptTemplates) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ConceptPrompt implements [memory.PromptTemplates].
func (m *PromptTemplates) ConceptPrompt(model, text string) []memory.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "ConceptPrompt", Args: []any{model, text}})
	if m.ConceptPromptResult == nil {
		return []memory.ChatMessage{{Role: "user", Content: text}}
	}
	return m.ConceptPromptResult
}

// ChatPrompt implements [memory.PromptTemplates].
func (m *PromptTemplates) ChatPrompt(model, system, context, userQuery string) []memory.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "ChatPrompt", Args: []any{model, system, context, userQuery}})
	if m.ChatPromptResult == nil {
		return []memory.ChatMessage{{Role: "user", Content: userQuery}}
	}
	return m.ChatPromptResult
}

// Ensure PromptTemplates satisfies the interface at compile time.
var _ memory.PromptTemplates = (*PromptTemplates)(nil)
