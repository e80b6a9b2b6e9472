package prompt_test

import (
	"strings"
	"testing"

	"github.com/danja/semem/pkg/provider/prompt"
)

func TestConceptPrompt_IncludesTextAndInstruction(t *testing.T) {
	tpl := prompt.New()
	msgs := tpl.ConceptPrompt("gpt-4o", "cats are great")

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "JSON array") {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "cats are great" {
		t.Errorf("user message = %+v", msgs[1])
	}
}

func TestChatPrompt_OmitsEmptySections(t *testing.T) {
	tpl := prompt.New()

	msgs := tpl.ChatPrompt("gpt-4o", "", "", "hello")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("expected bare user message, got %+v", msgs)
	}
}

func TestChatPrompt_CombinesSystemAndContext(t *testing.T) {
	tpl := prompt.New()

	msgs := tpl.ChatPrompt("gpt-4o", "be helpful", "Relevant Context:\nQ: x\nA: y", "what now?")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "be helpful") || !strings.Contains(msgs[0].Content, "Relevant Context") {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "what now?" {
		t.Errorf("user message = %+v", msgs[1])
	}
}

func TestChatPrompt_SystemOnly(t *testing.T) {
	tpl := prompt.New()
	msgs := tpl.ChatPrompt("m", "be terse", "", "hi")
	if len(msgs) != 2 || !strings.Contains(msgs[0].Content, "be terse") {
		t.Errorf("messages = %+v", msgs)
	}
}
