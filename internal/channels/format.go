package channels

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/providers"
)

// quizInstructions closes every rendered quiz.
const quizInstructions = "Para responder, use /responder seguido das letras " +
	"correspondentes às suas respostas (ex: /responder ABCDE)"

// FormatReply renders a reply envelope as chat text. The data payload is
// inspected by shape: a quiz becomes the formatted question block, a summary
// or plain text passes through, errors get the "Erro:" prefix and anything
// else is dumped as JSON. markdown selects Telegram-style emphasis for the
// quiz block; isQuiz tells the caller to enable the parse mode for it.
//
// Empty output means there is nothing to deliver for this envelope.
func FormatReply(msg *mcp.Message, markdown bool) (text string, isQuiz bool) {
	if msg == nil {
		return "", false
	}
	if msg.Kind == mcp.KindError {
		if t, ok := msg.Content["error"].(string); ok && t != "" {
			return "Erro: " + t, false
		}
		return "Erro: " + msg.ErrorMessage, false
	}

	switch data := msg.Data.(type) {
	case map[string]any:
		if qv, ok := data["quiz"]; ok {
			if qs := providers.QuestionsFrom(qv); len(qs) > 0 {
				return FormatQuiz(qs, markdown), true
			}
		}
		if r, ok := data["resumo"].(string); ok {
			return r, false
		}
		if e, ok := data["error"]; ok {
			return fmt.Sprintf("Erro: %v", e), false
		}
		if t, ok := data["text"].(string); ok {
			return t, false
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("Resposta: %v", data), false
		}
		return string(raw), false
	case string:
		return data, false
	case nil:
		return "", false
	default:
		return fmt.Sprintf("Resposta: %v", data), false
	}
}

// AckText returns the interim acknowledgement for commands whose answer
// needs a model round trip, or "" when none applies. Adapters send it
// before dispatching so the user knows the bot heard them.
func AckText(msg *mcp.Message) string {
	if msg == nil || msg.Kind != mcp.KindCommand {
		return ""
	}
	topico, _ := msg.Parameters["topico"].(string)
	if topico == "" {
		return ""
	}
	switch msg.Command {
	case "resumo":
		return fmt.Sprintf("Gerando resumo sobre '%s'. Aguarde um momento...", topico)
	case "quiz":
		return fmt.Sprintf("Gerando quiz sobre '%s'...", topico)
	}
	return ""
}

// FormatQuiz renders questions as a numbered block with lettered options and
// the /responder instructions.
func FormatQuiz(questions []providers.Question, markdown bool) string {
	var b strings.Builder
	if markdown {
		b.WriteString("📝 *QUIZ* 📝\n\n")
	} else {
		b.WriteString("📝 QUIZ 📝\n\n")
	}
	for i, q := range questions {
		if markdown {
			fmt.Fprintf(&b, "*Pergunta %d*: %s\n\n", i+1, q.Pergunta)
		} else {
			fmt.Fprintf(&b, "Pergunta %d: %s\n\n", i+1, q.Pergunta)
		}
		for j, opcao := range q.Opcoes {
			fmt.Fprintf(&b, "%c) %s\n", 'A'+j, opcao)
		}
		b.WriteString("\n")
	}
	b.WriteString(quizInstructions)
	return b.String()
}
