package anyllm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/danja/semem/pkg/memory"
	chatanyllm "github.com/danja/semem/pkg/provider/chat/anyllm"
	embedmock "github.com/danja/semem/pkg/provider/embeddings/mock"
	"github.com/danja/semem/pkg/provider/llm"
	llmmock "github.com/danja/semem/pkg/provider/llm/mock"
)

func TestChat_DelegatesToCompleteAndReturnsContent(t *testing.T) {
	chat := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hola"}}
	p := chatanyllm.New(chat, &embedmock.Provider{})

	got, err := p.Chat(context.Background(), "llama3", []memory.ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, memory.ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hola" {
		t.Errorf("got %q", got)
	}
	req := chat.CompleteCalls[0].Req
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
}

func TestChat_PropagatesCompleteError(t *testing.T) {
	chat := &llmmock.Provider{CompleteErr: errors.New("backend unreachable")}
	p := chatanyllm.New(chat, &embedmock.Provider{})

	_, err := p.Chat(context.Background(), "llama3", []memory.ChatMessage{{Role: "user", Content: "x"}}, memory.ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbed_DelegatesToSeparatelyConfiguredEmbeddingProvider(t *testing.T) {
	embed := &embedmock.Provider{EmbedResult: []float32{0.4, 0.5}}
	p := chatanyllm.New(&llmmock.Provider{}, embed)

	got, err := p.Embed(context.Background(), "nomic-embed-text", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestCompletion_WrapsPromptAsUserMessage(t *testing.T) {
	chat := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	p := chatanyllm.New(chat, &embedmock.Provider{})

	got, err := p.Completion(context.Background(), "llama3", "summarize this", memory.ChatOptions{})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
	req := chat.CompleteCalls[0].Req
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", req.Messages)
	}
}
