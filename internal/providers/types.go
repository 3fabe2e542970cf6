// Package providers talks to the model APIs behind the study agent. A
// Provider generates raw text for a prompt; the summary and quiz
// orchestration on top of it (prompts, JSON extraction, validation) is
// provider-agnostic.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the interface all model providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string

	// Model returns the model the provider will call.
	Model() string

	// GenerateContent sends a prompt and returns the generated text,
	// trimmed.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Question is one multiple-choice quiz question. Opcoes has exactly four
// entries after validation; RespostaCorreta indexes into it (0 is A).
type Question struct {
	Pergunta        string   `json:"pergunta"`
	Opcoes          []string `json:"opcoes"`
	RespostaCorreta int      `json:"resposta_correta"`
}

// SummaryResult is a generated study summary.
type SummaryResult struct {
	Resumo string `json:"resumo"`
	Topic  string `json:"topic"`
}

// QuizResult is a generated quiz.
type QuizResult struct {
	Topic     string     `json:"topic"`
	Questions []Question `json:"quiz"`
}

// QuestionsFrom recovers quiz questions from a decoded value. Quizzes cross
// the state store and the wire as generic JSON, so the value may be a
// question slice or any JSON-shaped equivalent; a round trip through the
// codec normalizes it. Unrecognizable input yields nil.
func QuestionsFrom(v any) []Question {
	switch qs := v.(type) {
	case nil:
		return nil
	case []Question:
		return qs
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var qs []Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil
	}
	return qs
}

// New builds a provider by name. The api key must already be resolved; env
// lookup is the config layer's job.
func New(name, model, apiKey string) (Provider, error) {
	switch name {
	case "gemini":
		return NewGeminiProvider(apiKey, model)
	case "openai":
		return NewOpenAIProvider("openai", apiKey, "", model)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
