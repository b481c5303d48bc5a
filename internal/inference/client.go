// Package inference talks to a locally hosted, OpenAI-compatible chat
// completions endpoint such as Ollama, vLLM or the llama.cpp server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/metrics"
)

const (
	DefaultEndpoint = "http://127.0.0.1:11434/v1/chat/completions"
	DefaultModel    = "llama3:8b"
	DefaultTimeout  = 60 * time.Second
)

// ErrInference is wrapped by every failed completion.
var ErrInference = errors.New("inference failed")

// DefaultSystemPrompt is the supportive companion persona.
const DefaultSystemPrompt = `You are an empathetic, calm, emotionally supportive mental health companion.

IMPORTANT RESPONSE FORMAT RULES:
- Always respond in VALID MARKDOWN
- Use bullet points or numbered lists when giving steps or tips
- Use **bold** for headings or key ideas
- Add a blank line between paragraphs
- Keep responses structured and easy to read

Behavior rules:
- Always acknowledge emotions first
- Never judge or shame
- No medical diagnosis or medication advice
- Ask at most ONE gentle follow-up question
- Keep replies 2–8 short sentences
- Warm, human, comforting tone`

// Persona is the system prompt and sampling parameters sent with every
// completion.
type Persona struct {
	SystemPrompt string
	Temperature  float64
	TopP         float64
}

// DefaultPersona returns the companion persona with its sampling parameters.
func DefaultPersona() Persona {
	return Persona{SystemPrompt: DefaultSystemPrompt, Temperature: 0.8, TopP: 0.9}
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	Persona  Persona
}

// Client issues single-turn chat completions.
type Client struct {
	endpoint string
	model    string
	persona  Persona
	client   *http.Client
	logger   *slog.Logger
}

// NewClient builds a Client, filling unset fields with defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Persona.SystemPrompt == "" {
		cfg.Persona.SystemPrompt = DefaultSystemPrompt
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		persona:  cfg.Persona,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logging.OrDiscard(logger),
	}
}

// Persona returns the configured persona.
func (c *Client) Persona() Persona { return c.persona }

// Complete answers userMessage using the configured persona.
func (c *Client) Complete(ctx context.Context, userMessage string) (string, error) {
	return c.Chat(ctx, c.persona.SystemPrompt, userMessage)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends one system turn and one user turn and returns the assistant text.
func (c *Client) Chat(ctx context.Context, systemPrompt, userMessage string) (reply string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOutbound(metrics.ServiceLLM, start, err) }()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: c.persona.Temperature,
		TopP:        c.persona.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshalling request: %v", ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: llm request: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: llm failed (status %d): %s", ErrInference, resp.StatusCode, respBody)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrInference, err)
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: response missing choices[0].message.content", ErrInference)
	}

	reply = *decoded.Choices[0].Message.Content
	c.logger.Debug("llm completion", slog.Int("reply_length", len(reply)), slog.Duration("duration", time.Since(start)))
	return reply, nil
}
