package registry

import (
	"testing"

	"govgen/internal/providers"
	"govgen/internal/providers/anthropic_messages"
	"govgen/internal/providers/openai_compat"
)

func TestBuildKnownKinds(t *testing.T) {
	p, err := Build(BuildOptions{Kind: providers.OpenAI, APIKey: "k"})
	if err != nil {
		t.Fatalf("build openai: %v", err)
	}
	if _, ok := p.(*openai_compat.Client); !ok {
		t.Fatalf("expected openai_compat client, got %T", p)
	}

	p, err = Build(BuildOptions{Kind: providers.Anthropic, APIKey: "k"})
	if err != nil {
		t.Fatalf("build anthropic: %v", err)
	}
	if _, ok := p.(*anthropic_messages.Client); !ok {
		t.Fatalf("expected anthropic_messages client, got %T", p)
	}
}

func TestBuildUnknownKind(t *testing.T) {
	if _, err := Build(BuildOptions{Kind: "gemini"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
