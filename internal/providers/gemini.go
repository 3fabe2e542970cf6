package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultGeminiModel is used when the config names none.
const DefaultGeminiModel = "gemini-1.5-flash"

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Google generative language REST API directly.
type GeminiProvider struct {
	apiKey      string
	apiBase     string
	model       string
	client      *http.Client
	retryConfig RetryConfig
}

// NewGeminiProvider builds a Gemini client. model defaults to
// DefaultGeminiModel.
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: chave de API não configurada")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		apiKey:      apiKey,
		apiBase:     geminiAPIBase,
		model:       model,
		client:      &http.Client{Timeout: 120 * time.Second},
		retryConfig: DefaultRetryConfig(),
	}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends the prompt to the model's generateContent endpoint
// and concatenates the first candidate's text parts.
func (p *GeminiProvider) GenerateContent(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	return RetryDo(ctx, p.retryConfig, func() (string, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var gemResp geminiResponse
		if err := json.NewDecoder(respBody).Decode(&gemResp); err != nil {
			return "", fmt.Errorf("gemini: decode response: %w", err)
		}
		if len(gemResp.Candidates) == 0 {
			return "", fmt.Errorf("gemini: resposta vazia ou inválida do modelo")
		}
		var sb strings.Builder
		for _, part := range gemResp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			return "", fmt.Errorf("gemini: resposta vazia ou inválida do modelo")
		}
		return text, nil
	})
}

func (p *GeminiProvider) doRequest(ctx context.Context, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.apiBase, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("gemini: %s", string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}
