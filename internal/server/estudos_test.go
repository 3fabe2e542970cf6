package server

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/estudolab/estudai/internal/config"
)

const summaryReply = "HTTP é o protocolo que o navegador usa para pedir e receber páginas da web."

const quizReply = `[
	{"pergunta": "O que significa HTTP?", "opcoes": ["HyperText Transfer Protocol", "High Transfer", "Host Text", "Hyperlink Tape"], "resposta_correta": 0},
	{"pergunta": "Qual é a porta padrão do HTTPS?", "opcoes": ["80", "443", "22", "8080"], "resposta_correta": 1},
	{"pergunta": "Qual método envia dados no corpo?", "opcoes": ["GET", "HEAD", "POST", "OPTIONS"], "resposta_correta": 2}
]`

func TestGerarResumo(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	provider := &fakeProvider{reply: summaryReply}
	srv.SetProvider(provider)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/estudos/gerar-resumo", `{"topico":"HTTP"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeJSON(t, rec); body["resumo"] != summaryReply {
		t.Errorf("body = %v", body)
	}
	if len(provider.prompts) != 1 || !strings.Contains(provider.prompts[0], "HTTP") {
		t.Errorf("prompts = %v", provider.prompts)
	}
}

func TestGerarResumo_SemTopico(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	srv.SetProvider(&fakeProvider{reply: summaryReply})
	h := srv.Handler()

	for _, body := range []string{`{}`, `{"topico":"  "}`, ``} {
		rec := doRequest(t, h, http.MethodPost, "/estudos/gerar-resumo", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
			continue
		}
		if resp := decodeJSON(t, rec); resp["error"] != "Tópico não fornecido." {
			t.Errorf("body %q: error = %v", body, resp["error"])
		}
	}
}

func TestGerarResumo_SemProvider(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/estudos/gerar-resumo", `{"topico":"HTTP"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestGerarResumo_FalhaDeGeracao(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	srv.SetProvider(&fakeProvider{err: errors.New("quota esgotada")})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/estudos/gerar-resumo", `{"topico":"HTTP"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	errText, _ := body["error"].(string)
	if !strings.Contains(errText, "quota esgotada") {
		t.Errorf("body = %v", body)
	}
}

func TestGerarQuiz(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	provider := &fakeProvider{reply: quizReply}
	srv.SetProvider(provider)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/estudos/gerar-quiz", `{"topico":"redes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	quiz, _ := body["quiz"].([]any)
	if len(quiz) != 3 {
		t.Fatalf("quiz = %v", body["quiz"])
	}
	first, _ := quiz[0].(map[string]any)
	if first["pergunta"] != "O que significa HTTP?" {
		t.Errorf("first question = %v", first)
	}
}

func TestGerarQuiz_TopicoPadrao(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	provider := &fakeProvider{reply: quizReply}
	srv.SetProvider(provider)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/estudos/gerar-quiz", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(provider.prompts) != 1 || !strings.Contains(provider.prompts[0], defaultQuizTopic) {
		t.Errorf("prompts = %v, want the default topic", provider.prompts)
	}
}

func TestAvaliarQuiz(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/estudos/avaliar-quiz",
		`{"respostas_usuario":[0,1,2],"respostas_certas":[0,2,2]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["pontuacao"] != float64(2) || body["total"] != float64(3) {
		t.Errorf("score = %v/%v", body["pontuacao"], body["total"])
	}
	if body["mensagem"] != "Você acertou 2 de 3 perguntas." {
		t.Errorf("mensagem = %v", body["mensagem"])
	}
	feedback, _ := body["feedback"].([]any)
	if len(feedback) != 3 {
		t.Fatalf("feedback = %v", body["feedback"])
	}
	second, _ := feedback[1].(map[string]any)
	if second["acerto"] != false || second["pergunta"] != float64(2) {
		t.Errorf("second feedback = %v", second)
	}
	if second["sua_resposta"] != float64(1) || second["resposta_correta"] != float64(2) {
		t.Errorf("second feedback answers = %v", second)
	}
}

func TestAvaliarQuiz_ListasDesiguais(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/estudos/avaliar-quiz",
		`{"respostas_usuario":[0],"respostas_certas":[0,1]}`)
	body := decodeJSON(t, rec)
	if body["pontuacao"] != float64(1) || body["total"] != float64(2) {
		t.Errorf("score = %v/%v", body["pontuacao"], body["total"])
	}
	feedback, _ := body["feedback"].([]any)
	if len(feedback) != 1 {
		t.Errorf("feedback = %v", body["feedback"])
	}
}

func TestAvaliarQuiz_CamposFaltando(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	for _, body := range []string{`{}`, `{"respostas_usuario":[0]}`, `{"respostas_certas":[0]}`} {
		if rec := doRequest(t, h, http.MethodPost, "/estudos/avaliar-quiz", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestProgresso_RoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/estudos/salvar-progresso?usuario_id=ana",
		`{"nivel":"b1","acertos":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("salvar status = %d, want 200", rec.Code)
	}
	if body := decodeJSON(t, rec); body["message"] != "Progresso salvo com sucesso." {
		t.Errorf("salvar body = %v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/estudos/recuperar-progresso?usuario_id=ana", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recuperar status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	progresso, _ := body["progresso"].(map[string]any)
	if progresso["nivel"] != "b1" || progresso["acertos"] != float64(7) {
		t.Errorf("progresso = %v", body["progresso"])
	}
}

func TestProgresso_UsuarioDesconhecido(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/estudos/recuperar-progresso?usuario_id=ninguem", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	progresso, ok := body["progresso"].(map[string]any)
	if !ok || len(progresso) != 0 {
		t.Errorf("progresso = %v, want empty object", body["progresso"])
	}
}

func TestProgresso_SemUsuarioID(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	if rec := doRequest(t, h, http.MethodPost, "/estudos/salvar-progresso", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("salvar status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/estudos/recuperar-progresso", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("recuperar status = %d, want 400", rec.Code)
	}
}

func TestRotasLegadas(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	provider := &fakeProvider{reply: summaryReply}
	srv.SetProvider(provider)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/estudos/revisar", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revisar status = %d, want 200", rec.Code)
	}
	if body := decodeJSON(t, rec); body["resumo"] != summaryReply {
		t.Errorf("revisar body = %v", body)
	}
	if len(provider.prompts) != 1 || !strings.Contains(provider.prompts[0], "geral") {
		t.Errorf("revisar prompts = %v", provider.prompts)
	}

	quizProvider := &fakeProvider{reply: quizReply}
	srv.provider = quizProvider
	rec = doRequest(t, h, http.MethodPost, "/estudos/quiz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quiz status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if quiz, _ := body["quiz"].([]any); len(quiz) != 3 {
		t.Errorf("quiz body = %v", body)
	}
	if len(quizProvider.prompts) != 1 || !strings.Contains(quizProvider.prompts[0], defaultQuizTopic) {
		t.Errorf("quiz prompts = %v", quizProvider.prompts)
	}
}
