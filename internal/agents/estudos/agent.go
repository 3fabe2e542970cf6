// Package estudos implements the study assistant agent: summaries, quizzes
// and quiz grading on top of a model provider, with per-user state (last
// topic, active quiz) in a state.Store.
package estudos

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/providers"
	"github.com/estudolab/estudai/internal/state"
)

// AgentID is the id the agent registers under.
const AgentID = "estudos"

const welcomeText = "Olá! Eu sou seu assistente de estudos. " +
	"Use /resumo <tópico> para gerar um resumo ou /quiz <tópico> para iniciar um quiz."

const providerUnavailableText = "Provedor de modelo não está disponível no momento."

// Agent answers start/resumo/quiz/responder commands and free-text queries.
// provider may be nil when no api key is configured; every capability that
// needs it degrades to a failed response instead.
type Agent struct {
	*mcp.BaseAgent
	provider providers.Provider
	store    state.Store
}

// New builds the agent with its capability table.
func New(provider providers.Provider, store state.Store) *Agent {
	a := &Agent{provider: provider, store: store}
	a.BaseAgent = mcp.NewBaseAgent(AgentID, map[string]mcp.Capability{
		"start":             a.handleStart,
		"resumo":            a.handleResumo,
		"quiz":              a.handleQuiz,
		"responder":         a.handleResponder,
		mcp.QueryCapability: a.handleQuery,
	})
	if provider == nil {
		slog.Warn("estudos agent running without a model provider")
	}
	return a
}

func (a *Agent) handleStart(ctx context.Context, msg *mcp.Message) *mcp.Message {
	if msg.UserID != "" {
		a.saveState(ctx, msg.UserID, map[string]any{"ultimo_comando": "start"})
	}
	return a.SuccessText(msg, welcomeText)
}

func (a *Agent) handleResumo(ctx context.Context, msg *mcp.Message) *mcp.Message {
	topico := paramString(msg, "topico")
	if topico == "" {
		return a.Fail(msg, "Por favor, forneça um tópico. Exemplo: /resumo HTTP")
	}
	if msg.UserID != "" {
		a.saveState(ctx, msg.UserID, map[string]any{"ultimo_topico": topico})
	}
	if a.provider == nil {
		return a.Fail(msg, providerUnavailableText)
	}

	result, err := providers.Summary(ctx, a.provider, topico)
	if err != nil {
		slog.Warn("summary generation failed", "topic", topico, "error", err)
		return a.Fail(msg, fmt.Sprintf("Não foi possível gerar um resumo satisfatório para: %s", topico))
	}
	return a.SuccessData(msg, map[string]any{
		"resumo":  result.Resumo,
		"topic":   result.Topic,
		"success": true,
	})
}

func (a *Agent) handleQuiz(ctx context.Context, msg *mcp.Message) *mcp.Message {
	topico := paramString(msg, "topico")
	if topico == "" && msg.UserID != "" {
		estado := a.loadState(ctx, msg.UserID)
		if t, ok := estado["ultimo_topico"].(string); ok {
			topico = t
		}
	}
	if topico == "" {
		topico = "geral"
	}
	if msg.UserID != "" {
		a.saveState(ctx, msg.UserID, map[string]any{"ultimo_topico": topico})
	}
	if a.provider == nil {
		return a.Fail(msg, providerUnavailableText)
	}

	result, err := providers.Quiz(ctx, a.provider, topico, providers.DefaultQuizQuestions)
	if err != nil {
		slog.Warn("quiz generation failed", "topic", topico, "error", err)
		return a.Fail(msg, fmt.Sprintf("Erro ao gerar quiz sobre %s: %v", topico, err))
	}
	if len(result.Questions) == 0 {
		return a.Fail(msg, "Não foi possível gerar perguntas para o quiz.")
	}
	if msg.UserID != "" {
		a.saveState(ctx, msg.UserID, map[string]any{"quiz_atual": result.Questions})
	}
	return a.SuccessData(msg, map[string]any{
		"quiz":    result.Questions,
		"topic":   result.Topic,
		"success": true,
	})
}

func (a *Agent) handleResponder(ctx context.Context, msg *mcp.Message) *mcp.Message {
	respostas := paramString(msg, "respostas")
	if respostas == "" {
		return a.Fail(msg, "Por favor, forneça suas respostas. Exemplo: /responder ABCDE")
	}
	if msg.UserID == "" {
		return a.Fail(msg, "Não foi possível identificar o usuário.")
	}

	estado := a.loadState(ctx, msg.UserID)
	quiz := providers.QuestionsFrom(estado["quiz_atual"])
	if len(quiz) == 0 {
		return a.Fail(msg, "Não há um quiz ativo. Gere um quiz primeiro com /quiz <tópico>.")
	}

	userAnswers := parseAnswerLetters(respostas, len(quiz))
	correct := make([]int, len(quiz))
	for i, q := range quiz {
		correct[i] = q.RespostaCorreta
	}
	result := gradeQuiz(userAnswers, correct)

	// Quiz answered; clear it so a repeated /responder is rejected.
	a.saveState(ctx, msg.UserID, map[string]any{"quiz_atual": nil})

	resp := mcp.NewResponse(msg, AgentID, true, map[string]any{
		"avaliacao": result,
		"texto":     fmt.Sprintf("Você acertou %d de %d perguntas!", result["pontuacao"], result["total"]),
	})
	resp.Content = result
	return resp
}

// handleQuery treats free text as a summary request about that text.
func (a *Agent) handleQuery(ctx context.Context, msg *mcp.Message) *mcp.Message {
	if a.provider == nil {
		return a.Fail(msg, providerUnavailableText)
	}
	result, err := providers.Summary(ctx, a.provider, msg.Query)
	if err != nil {
		slog.Warn("query processing failed", "query", msg.Query, "error", err)
		return a.Fail(msg, fmt.Sprintf("Não foi possível gerar um resumo satisfatório para: %s", msg.Query))
	}
	return a.SuccessData(msg, map[string]any{
		"resumo":  result.Resumo,
		"topic":   result.Topic,
		"success": true,
	})
}

// gradeQuiz compares answers pairwise and builds the grading result:
// score, total, percentage and a per-question breakdown.
func gradeQuiz(userAnswers, correct []int) map[string]any {
	acertos := 0
	detalhes := make([]map[string]any, 0, len(correct))

	for i := range correct {
		acertou := userAnswers[i] == correct[i]
		if acertou {
			acertos++
		}
		detalhes = append(detalhes, map[string]any{
			"pergunta":         i + 1,
			"resposta_usuario": answerLetter(userAnswers[i]),
			"resposta_correta": answerLetter(correct[i]),
			"acertou":          acertou,
		})
	}

	total := len(correct)
	porcentagem := 0
	if total > 0 {
		porcentagem = acertos * 100 / total
	}
	return map[string]any{
		"pontuacao":   acertos,
		"total":       total,
		"porcentagem": porcentagem,
		"detalhes":    detalhes,
	}
}

// parseAnswerLetters maps A-D to 0-3; anything else (including spaces)
// counts as an invalid answer. The result is padded or truncated to n.
func parseAnswerLetters(text string, n int) []int {
	answers := make([]int, 0, n)
	for _, r := range strings.ToUpper(text) {
		if r >= 'A' && r <= 'D' {
			answers = append(answers, int(r-'A'))
		} else {
			answers = append(answers, -1)
		}
	}
	for len(answers) < n {
		answers = append(answers, -1)
	}
	return answers[:n]
}

func answerLetter(idx int) string {
	if idx >= 0 && idx <= 25 {
		return string(rune('A' + idx))
	}
	return "?"
}

func paramString(msg *mcp.Message, key string) string {
	if msg.Parameters == nil {
		return ""
	}
	s, _ := msg.Parameters[key].(string)
	return s
}

// loadState reads the user's state; failures read as empty, state is
// advisory.
func (a *Agent) loadState(ctx context.Context, userID string) map[string]any {
	data, err := a.store.Get(ctx, userID)
	if err != nil {
		slog.Warn("state read failed", "user_id", userID, "error", err)
		return map[string]any{}
	}
	return data
}

func (a *Agent) saveState(ctx context.Context, userID string, data map[string]any) {
	if err := a.store.Put(ctx, userID, data); err != nil {
		slog.Warn("state write failed", "user_id", userID, "error", err)
	}
}
