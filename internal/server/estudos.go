package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/estudolab/estudai/internal/providers"
	"github.com/estudolab/estudai/internal/state"
)

// The study routes under /estudos call the provider and the state store
// directly, keeping the REST contract the system shipped with before the
// message layer existed. n8n flows and the router cover the same ground
// through envelopes.

// defaultQuizTopic stands in when a quiz request names no topic.
const defaultQuizTopic = "conhecimentos gerais"

func (s *Server) handleGerarResumo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Topico string `json:"topico"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Payload inválido"})
		return
	}
	topico := strings.TrimSpace(body.Topico)
	if topico == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Tópico não fornecido."})
		return
	}
	s.respondResumo(r.Context(), w, topico)
}

func (s *Server) handleGerarQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Topico string `json:"topico"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Payload inválido"})
		return
	}
	s.respondQuiz(r.Context(), w, strings.TrimSpace(body.Topico))
}

func (s *Server) handleAvaliarQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		RespostasUsuario []int `json:"respostas_usuario"`
		RespostasCertas  []int `json:"respostas_certas"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Payload inválido"})
		return
	}
	if body.RespostasUsuario == nil || body.RespostasCertas == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "respostas_usuario e respostas_certas são obrigatórias.",
		})
		return
	}
	writeJSON(w, http.StatusOK, avaliarQuiz(body.RespostasUsuario, body.RespostasCertas))
}

func (s *Server) handleSalvarProgresso(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	usuarioID := r.URL.Query().Get("usuario_id")
	if usuarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "usuario_id é obrigatório."})
		return
	}
	var progresso map[string]any
	if err := decodeBody(r, &progresso); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Payload inválido"})
		return
	}
	if progresso == nil {
		progresso = map[string]any{}
	}
	if err := s.store.Put(r.Context(), usuarioID, map[string]any{"progresso": progresso}); err != nil {
		slog.Error("progress save failed", "user_id", usuarioID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Não foi possível salvar o progresso.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Progresso salvo com sucesso."})
}

func (s *Server) handleRecuperarProgresso(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	usuarioID := r.URL.Query().Get("usuario_id")
	if usuarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "usuario_id é obrigatório."})
		return
	}
	progresso, err := state.Property(r.Context(), s.store, usuarioID, "progresso")
	if err != nil {
		slog.Error("progress load failed", "user_id", usuarioID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Não foi possível recuperar o progresso.",
		})
		return
	}
	if progresso == nil {
		progresso = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"progresso": progresso})
}

// handleRevisar is the legacy review route: a fixed general summary.
func (s *Server) handleRevisar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respondResumo(r.Context(), w, "geral")
}

// handleQuizLegacy is the legacy quiz route: no topic in the body.
func (s *Server) handleQuizLegacy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respondQuiz(r.Context(), w, "")
}

func (s *Server) respondResumo(ctx context.Context, w http.ResponseWriter, topico string) {
	if s.provider == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "Provedor de modelo não está disponível no momento.",
		})
		return
	}
	result, err := providers.Summary(ctx, s.provider, topico)
	if err != nil {
		// Generation failures still answer 200 with the error in the
		// body; that is the contract the flows were built against.
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumo": result.Resumo})
}

func (s *Server) respondQuiz(ctx context.Context, w http.ResponseWriter, topico string) {
	if s.provider == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "Provedor de modelo não está disponível no momento.",
		})
		return
	}
	if topico == "" {
		topico = defaultQuizTopic
	}
	result, err := providers.Quiz(ctx, s.provider, topico, 0)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": result.Questions})
}

// avaliarQuiz pairs answers up to the shorter list and scores against the
// number of expected answers.
func avaliarQuiz(usuario, certas []int) map[string]any {
	n := len(usuario)
	if len(certas) < n {
		n = len(certas)
	}

	pontuacao := 0
	feedback := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		acerto := usuario[i] == certas[i]
		if acerto {
			pontuacao++
		}
		feedback = append(feedback, map[string]any{
			"pergunta":         i + 1,
			"acerto":           acerto,
			"sua_resposta":     usuario[i],
			"resposta_correta": certas[i],
		})
	}

	return map[string]any{
		"pontuacao": pontuacao,
		"total":     len(certas),
		"feedback":  feedback,
		"mensagem":  fmt.Sprintf("Você acertou %d de %d perguntas.", pontuacao, len(certas)),
	}
}
