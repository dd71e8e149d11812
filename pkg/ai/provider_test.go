package ai

import "testing"

func TestNewTextGeneratorPrefersOpenAICompat(t *testing.T) {
	gen, err := NewTextGenerator(ProviderConfig{
		OpenAIBaseURL: "http://localhost:8000/v1",
		OpenAIModel:   "mistral",
		GeminiAPIKey:  "also-set",
		GeminiModel:   "gemini-2.0-flash",
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if _, ok := gen.(*OpenAICompatGenerator); !ok {
		t.Fatalf("expected openai-compat generator, got %T", gen)
	}
}

func TestNewTextGeneratorFallsBackToGemini(t *testing.T) {
	gen, err := NewTextGenerator(ProviderConfig{
		GeminiAPIKey: "key",
		GeminiModel:  "gemini-2.0-flash",
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if _, ok := gen.(*GeminiGenerator); !ok {
		t.Fatalf("expected gemini generator, got %T", gen)
	}
}

func TestNewTextGeneratorRequiresAProvider(t *testing.T) {
	if _, err := NewTextGenerator(ProviderConfig{}); err == nil {
		t.Fatalf("expected error when no provider configured")
	}
}

func TestNewTextGeneratorRequiresModels(t *testing.T) {
	if _, err := NewTextGenerator(ProviderConfig{OpenAIBaseURL: "http://x/v1"}); err == nil {
		t.Fatalf("expected error for missing openai-compat model")
	}
	if _, err := NewTextGenerator(ProviderConfig{GeminiAPIKey: "key"}); err == nil {
		t.Fatalf("expected error for missing gemini model")
	}
}
