package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// systemPrompt is the assistant persona for normal replies. Mediation
// requests carry their own instruction payload and bypass none of this —
// the persona still frames the voice.
const systemPrompt = `Você é o "NósDois AI", um Terapeuta de Casais especialista em Comportamento Humano e Comunicação Não-Violenta (CNV).

SEU PAPEL:
- Ajudar casais a se entenderem melhor.
- Traduzir ataques ("Você nunca me ouve!") em necessidades ("Eu me sinto sozinho e preciso de atenção").
- Sugerir exercícios práticos e rápidos.

TOM DE VOZ:
- Acolhedor, imparcial e leve.
- Use emojis moderadamente. 🌿❤️✨

REGRAS DE OURO:
1. Valide o sentimento antes de dar a solução.
2. Nunca diga quem está "certo" ou "errado".
3. Se a conversa esquentar, sugira uma pausa (Time-out).`

// GeminiProvider calls the Google AI Studio REST API.
type GeminiProvider struct {
	apiKey          string
	apiBase         string
	model           string
	maxOutputTokens int
	temperature     float64
	client          *http.Client
	retryConfig     RetryConfig
}

// GeminiOptions configure a new provider; zero values get defaults.
type GeminiOptions struct {
	APIKey          string
	APIBase         string // override for tests
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Timeout         time.Duration
}

func NewGeminiProvider(opts GeminiOptions) *GeminiProvider {
	if opts.APIBase == "" {
		opts.APIBase = "https://generativelanguage.googleapis.com"
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 800
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.6
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	return &GeminiProvider{
		apiKey:          opts.APIKey,
		apiBase:         strings.TrimRight(opts.APIBase, "/"),
		model:           opts.Model,
		maxOutputTokens: opts.MaxOutputTokens,
		temperature:     opts.Temperature,
		client:          &http.Client{Timeout: opts.Timeout},
		retryConfig:     DefaultRetryConfig(),
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"system_instruction,omitempty"`
	Contents          []geminiContent       `json:"contents"`
	GenerationConfig  map[string]any        `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate calls generateContent with bounded retry for transient transport
// failures. Safety blocks and empty candidates surface as sentinel errors
// and are never retried.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	body := p.buildRequestBody(req)

	return RetryDo(ctx, p.retryConfig, func() (string, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var gr geminiResponse
		if err := json.NewDecoder(respBody).Decode(&gr); err != nil {
			return "", fmt.Errorf("gemini: decode response: %w", err)
		}
		return parseReply(&gr)
	})
}

func (p *GeminiProvider) buildRequestBody(req Request) []byte {
	var prompt strings.Builder
	if req.History != "" {
		prompt.WriteString(req.History)
		prompt.WriteString("\n\n")
	}
	if req.Speaker != "" {
		fmt.Fprintf(&prompt, "%s disse: %s", req.Speaker, req.Prompt)
	} else {
		prompt.WriteString(req.Prompt)
	}

	blockOnlyHigh := []geminiSafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
	}

	data, _ := json.Marshal(geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt.String()}}},
		},
		GenerationConfig: map[string]any{
			"maxOutputTokens": p.maxOutputTokens,
			"temperature":     p.temperature,
			"topP":            0.95,
		},
		SafetySettings: blockOnlyHigh,
	})
	return data
}

func (p *GeminiProvider) doRequest(ctx context.Context, body []byte) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.apiBase, p.model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("gemini: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		err := fmt.Errorf("gemini: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, Transient(err)
		}
		return nil, err
	}

	return resp.Body, nil
}

func parseReply(gr *geminiResponse) (string, error) {
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		slog.Warn("gemini safety block", "reason", gr.PromptFeedback.BlockReason)
		return "", ErrSafetyBlocked
	}
	if len(gr.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	cand := gr.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		slog.Warn("gemini safety block", "reason", cand.FinishReason)
		return "", ErrSafetyBlocked
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
