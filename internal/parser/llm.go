package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rawblock/intent-engine/pkg/models"
)

// modelTimeout bounds one fallback round trip. A slow provider must not
// stall prompt parsing for longer than this.
const modelTimeout = 5 * time.Second

const maxModelTokens = 200

// IntentModel is the escape hatch for prompts no pattern recognizes.
// A nil intent with a nil error means the model declined to answer.
type IntentModel interface {
	ExtractIntent(ctx context.Context, prompt string) (*models.ParsedIntent, error)
}

// NoopModel never answers. Used when no provider key is configured.
type NoopModel struct{}

func (NoopModel) ExtractIntent(context.Context, string) (*models.ParsedIntent, error) {
	return nil, nil
}

// ModelFromEnv picks a provider from the environment. Anthropic wins when
// both keys are present; with neither, parsing runs pattern-only.
func ModelFromEnv() IntentModel {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return NewAnthropicModel(key)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return NewOpenAIModel(key)
	}
	return NoopModel{}
}

const extractionInstructions = `You translate Solana transaction prompts into JSON. Respond with a single JSON object {"protocol": "...", "action": "...", "params": {...}} and nothing else. Valid protocols: jupiter, raydium, orca, meteora, pumpfun, system, spl-token, token-2022, memo, jito, stake, marinade, kamino, marginfi, solend. Amounts are numbers; -1 means the full balance. If the prompt is not a transaction intent, respond with null.`

// decodeIntentJSON parses a model reply, tolerating markdown fences around
// the JSON object.
func decodeIntentJSON(raw string) (*models.ParsedIntent, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil, nil
	}

	var out struct {
		Protocol string        `json:"protocol"`
		Action   string        `json:"action"`
		Params   models.Params `json:"params"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("model reply is not valid intent JSON: %w", err)
	}
	if out.Protocol == "" || out.Action == "" {
		return nil, fmt.Errorf("model reply missing protocol or action")
	}
	if out.Params == nil {
		out.Params = models.Params{}
	}
	return &models.ParsedIntent{
		Protocol: strings.ToLower(out.Protocol),
		Action:   out.Action,
		Params:   out.Params,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Anthropic
// ─────────────────────────────────────────────────────────────────────────────

type AnthropicModel struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewAnthropicModel(apiKey string) *AnthropicModel {
	return &AnthropicModel{
		apiKey:  apiKey,
		model:   "claude-3-5-haiku-latest",
		baseURL: "https://api.anthropic.com",
		http:    &http.Client{Timeout: modelTimeout},
	}
}

func (m *AnthropicModel) ExtractIntent(ctx context.Context, prompt string) (*models.ParsedIntent, error) {
	payload, err := json.Marshal(map[string]any{
		"model":      m.model,
		"max_tokens": maxModelTokens,
		"system":     extractionInstructions,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic returned status %d", resp.StatusCode)
	}

	var reply struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned no content")
	}
	return decodeIntentJSON(reply.Content[0].Text)
}

// ─────────────────────────────────────────────────────────────────────────────
// OpenAI
// ─────────────────────────────────────────────────────────────────────────────

type OpenAIModel struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewOpenAIModel(apiKey string) *OpenAIModel {
	return &OpenAIModel{
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		baseURL: "https://api.openai.com",
		http:    &http.Client{Timeout: modelTimeout},
	}
}

func (m *OpenAIModel) ExtractIntent(ctx context.Context, prompt string) (*models.ParsedIntent, error) {
	payload, err := json.Marshal(map[string]any{
		"model":       m.model,
		"max_tokens":  maxModelTokens,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": extractionInstructions},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d", resp.StatusCode)
	}

	var reply struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return decodeIntentJSON(reply.Choices[0].Message.Content)
}
