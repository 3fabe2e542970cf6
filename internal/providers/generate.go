package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DefaultQuizQuestions is the quiz size when the caller asks for none.
const DefaultQuizQuestions = 3

const summaryPromptFmt = "Escreva um resumo claro e didático em português sobre: %s"

const quizPromptFmt = "Gere %d perguntas de múltipla escolha em português sobre o tópico: %s. " +
	"Cada pergunta deve ter exatamente 4 alternativas (A, B, C, D) e indicar qual é a correta. " +
	"Retorne as perguntas no seguinte formato JSON:\n" +
	"[\n" +
	"  {\n" +
	"    \"pergunta\": \"texto da pergunta 1\",\n" +
	"    \"opcoes\": [\"texto opção A\", \"texto opção B\", \"texto opção C\", \"texto opção D\"],\n" +
	"    \"resposta_correta\": 0\n" +
	"  }\n" +
	"]\n" +
	"Certifique-se de que o formato seja exatamente JSON válido, sem comentários."

// Summary generates a study summary about a topic. Besides transport errors
// it fails the result through a quality gate: a reply that opens with "Erro"
// or has fewer than ten words is useless to the student.
func Summary(ctx context.Context, p Provider, topic string) (*SummaryResult, error) {
	text, err := p.GenerateContent(ctx, fmt.Sprintf(summaryPromptFmt, topic))
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(text, "Erro") || len(strings.Fields(text)) < 10 {
		return nil, fmt.Errorf("resumo insatisfatório para %q", topic)
	}
	return &SummaryResult{Resumo: text, Topic: topic}, nil
}

// Quiz generates numQuestions multiple-choice questions about a topic. The
// model reply is free text around a JSON array; the array is extracted,
// parsed and normalized (exactly four options, answer index in range).
func Quiz(ctx context.Context, p Provider, topic string, numQuestions int) (*QuizResult, error) {
	if numQuestions <= 0 {
		numQuestions = DefaultQuizQuestions
	}
	text, err := p.GenerateContent(ctx, fmt.Sprintf(quizPromptFmt, numQuestions, topic))
	if err != nil {
		return nil, err
	}
	questions, err := parseQuizJSON(text)
	if err != nil {
		return nil, err
	}
	return &QuizResult{Topic: topic, Questions: questions}, nil
}

// parseQuizJSON pulls the JSON array out of a model reply and validates each
// question. Models wrap the array in prose or code fences; everything before
// the first '[' and after the last ']' is dropped.
func parseQuizJSON(text string) ([]Question, error) {
	if i := strings.Index(text, "["); i >= 0 {
		text = text[i:]
	}
	if i := strings.LastIndex(text, "]"); i >= 0 {
		text = text[:i+1]
	}

	var raw []map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("resposta não é JSON válido: %w", err)
	}

	questions := make([]Question, 0, len(raw))
	for _, entry := range raw {
		q, err := normalizeQuestion(entry)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func normalizeQuestion(entry map[string]any) (Question, error) {
	for _, key := range []string{"pergunta", "opcoes", "resposta_correta"} {
		if _, ok := entry[key]; !ok {
			return Question{}, fmt.Errorf("formato de pergunta inválido: falta %q", key)
		}
	}

	q := Question{Pergunta: fmt.Sprint(entry["pergunta"])}

	rawOpts, ok := entry["opcoes"].([]any)
	if !ok {
		return Question{}, fmt.Errorf("formato de pergunta inválido: opcoes não é lista")
	}
	for _, opt := range rawOpts {
		q.Opcoes = append(q.Opcoes, fmt.Sprint(opt))
	}
	// Exactly four options: pad with placeholders or truncate.
	for len(q.Opcoes) < 4 {
		q.Opcoes = append(q.Opcoes, fmt.Sprintf("Opção %d", len(q.Opcoes)+1))
	}
	q.Opcoes = q.Opcoes[:4]

	if f, ok := entry["resposta_correta"].(float64); ok && f == math.Trunc(f) {
		if idx := int(f); idx >= 0 && idx <= 3 {
			q.RespostaCorreta = idx
		}
	}
	return q, nil
}
