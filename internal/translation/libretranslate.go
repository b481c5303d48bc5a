package translation

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

	"github.com/calmly-app/calmly/internal/language"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/metrics"
)

const (
	// DefaultLibreTranslateURL is the default base URL for the LibreTranslate API.
	DefaultLibreTranslateURL = "http://127.0.0.1:5000"
	// DefaultTimeout bounds a single translation request.
	DefaultTimeout = 15 * time.Second
)

// LibreTranslateClient implements Translator against a LibreTranslate server.
type LibreTranslateClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// LibreTranslateConfig configures a LibreTranslateClient.
type LibreTranslateConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewLibreTranslateClient creates a new LibreTranslate client.
func NewLibreTranslateClient(cfg LibreTranslateConfig, logger *slog.Logger) *LibreTranslateClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLibreTranslateURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LibreTranslateClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrDiscard(logger),
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText *string `json:"translatedText"`
}

// Translate translates text from source to target.
func (c *LibreTranslateClient) Translate(ctx context.Context, text string, source, target language.Code) (result string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOutbound(metrics.ServiceTranslator, start, err) }()

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(translateRequest{
		Q:      text,
		Source: source.String(),
		Target: target.String(),
		Format: "text",
		APIKey: c.apiKey,
	}); err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrTranslation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", buf)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTranslation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrTranslation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: unexpected status %d: %s", ErrTranslation, resp.StatusCode, body)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranslation, err)
	}
	if decoded.TranslatedText == nil {
		return "", fmt.Errorf("%w: response missing translatedText", ErrTranslation)
	}

	c.logger.Debug("translation completed",
		slog.String("source", source.String()),
		slog.String("target", target.String()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return *decoded.TranslatedText, nil
}

// CheckHealth verifies that LibreTranslate answers its languages endpoint.
func (c *LibreTranslateClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/languages", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
