package catalog

import (
	"testing"

	"pytc/pkg/config"
)

func TestNewFromConfig(t *testing.T) {
	RegisterKind("test-fake", func(src config.SourceConfig, deps Deps) (Provider, error) {
		return &fakeProvider{id: src.Name, kind: Remote}, nil
	})

	providers, err := NewFromConfig([]config.SourceConfig{{Kind: "test-fake", Name: "one"}, {Kind: "test-fake", Name: "two"}}, Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != 2 || providers[0].ID() != "one" || providers[1].ID() != "two" {
		t.Fatalf("providers = %v", providers)
	}

	if _, err := NewFromConfig([]config.SourceConfig{{Kind: "nope", Name: "nope"}}, Deps{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
