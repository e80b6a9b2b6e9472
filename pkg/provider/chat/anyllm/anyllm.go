// Package anyllm adapts an any-llm-go-backed pkg/provider/llm.Provider,
// paired with a separately-configured pkg/provider/embeddings.Provider (the
// any-llm-go backend itself exposes no embedding API), into the minimal
// [memory.ChatProvider] contract the semantic memory engine core consumes.
//
// This is the secondary ChatProvider path, for deployments wanting
// provider-agnostic chat (OpenAI, Anthropic, Gemini, Ollama, and the rest
// of any-llm-go's backends) while sourcing embeddings from a separate,
// typically local, provider such as pkg/provider/embeddings/ollama.
package anyllm

import (
	"context"
	"fmt"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/provider/embeddings"
	"github.com/danja/semem/pkg/provider/llm"
)

var _ memory.ChatProvider = (*Provider)(nil)

// Provider composes any pkg/provider/llm.Provider implementation with any
// pkg/provider/embeddings.Provider implementation into a single
// [memory.ChatProvider]. Both backends are bound to a specific model at
// construction time; the model parameter accepted by
// Chat/Completion/Embed is informational only.
type Provider struct {
	chat  llm.Provider
	embed embeddings.Provider
}

// New returns a Provider delegating chat and completion calls to chat and
// embedding calls to embed.
func New(chat llm.Provider, embed embeddings.Provider) *Provider {
	return &Provider{chat: chat, embed: embed}
}

// Chat implements [memory.ChatProvider].
func (p *Provider) Chat(ctx context.Context, _ string, messages []memory.ChatMessage, opts memory.ChatOptions) (string, error) {
	resp, err := p.chat.Complete(ctx, llm.CompletionRequest{
		Messages:    convertMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat/anyllm: chat: %w", err)
	}
	return resp.Content, nil
}

// Completion implements [memory.ChatProvider] by sending prompt as a single
// user-role message.
func (p *Provider) Completion(ctx context.Context, model, prompt string, opts memory.ChatOptions) (string, error) {
	return p.Chat(ctx, model, []memory.ChatMessage{{Role: "user", Content: prompt}}, opts)
}

// Embed implements [memory.ChatProvider].
func (p *Provider) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	vec, err := p.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("chat/anyllm: embed: %w", err)
	}
	return vec, nil
}

func convertMessages(messages []memory.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
