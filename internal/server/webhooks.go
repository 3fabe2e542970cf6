package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/estudolab/estudai/internal/mcp"
)

// handleTelegramWebhook feeds a raw Telegram update to the adapter. The
// update is processed off the request; Telegram only needs the ack.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.telegram == nil {
		slog.Error("telegram webhook hit without a registered adapter")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "Telegram adapter not registered",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	go s.telegram.Receive(context.Background(), body)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleN8NWebhook translates an n8n payload, routes it synchronously and
// answers with the reply's data, which is what the flow consumes.
func (s *Server) handleN8NWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.webhook == nil {
		slog.Error("n8n webhook hit without a registered adapter")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "Webhook adapter not registered",
		})
		return
	}

	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "Payload de webhook inválido",
		})
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["source"] = "n8n"

	msg := s.webhook.HandleExternalInput(r.Context(), payload)
	if msg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	if msg.Kind == mcp.KindError {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": msg.ErrorMessage,
		})
		return
	}

	reply := s.router.HandleMessage(r.Context(), msg)
	if reply.Kind == mcp.KindError {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": reply.ErrorMessage,
		})
		return
	}

	writeJSON(w, http.StatusOK, reply.Data)
}

// decodeBody decodes a JSON request body. An empty body decodes to the
// zero value rather than failing, matching how the first deployment
// treated optional bodies.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
