package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/ratelimit"
)

// GenerationConfig carries the knobs forwarded to the generative endpoint.
type GenerationConfig struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GenerativeClient calls a third-party text-generation endpoint. The response
// is a single text blob expected to parse as JSON matching the feature schema.
type GenerativeClient struct {
	baseURL    string
	apiKey     string
	gen        GenerationConfig
	httpClient *http.Client
}

// NewGenerativeClient constructs a client for the configured model endpoint.
func NewGenerativeClient(baseURL, apiKey string, gen GenerationConfig, timeout time.Duration) *GenerativeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GenerativeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		gen:        gen,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateText sends the prompt and returns the raw response text.
func (c *GenerativeClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("generative endpoint not configured")
	}

	body, err := json.Marshal(struct {
		GenerationConfig
		Prompt string `json:"prompt"`
	}{GenerationConfig: c.gen, Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generative endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var envelope struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if envelope.Text == "" {
		return "", fmt.Errorf("generative endpoint returned empty text")
	}
	return envelope.Text, nil
}

// GenerativeSource regenerates feature payloads locally through the generative
// model when the remote function tier is down. Calls are gated by the
// higher-cost model limiter; responses that fail to parse into the feature
// schema surface as MalformedPayloadError so the resolver falls through.
type GenerativeSource struct {
	client  *GenerativeClient
	limiter *ratelimit.Limiter
}

// NewGenerativeSource wraps a generative client as the second-priority source.
func NewGenerativeSource(client *GenerativeClient, limiter *ratelimit.Limiter) *GenerativeSource {
	return &GenerativeSource{client: client, limiter: limiter}
}

// Kind identifies this source as the direct third-party tier.
func (s *GenerativeSource) Kind() models.SourceKind { return models.SourceDirectAPI }

// Attempt prompts the model and validates the returned JSON.
func (s *GenerativeSource) Attempt(ctx context.Context, req models.AnalyticalRequest) (models.Payload, error) {
	prompt := buildPrompt(req)

	var text string
	call := func(ctx context.Context) error {
		var err error
		text, err = s.client.GenerateText(ctx, prompt)
		return err
	}
	if s.limiter != nil {
		if err := s.limiter.Do(ctx, call); err != nil {
			return nil, err
		}
	} else if err := call(ctx); err != nil {
		return nil, err
	}

	payload, err := DecodePayload(req.Kind, []byte(extractJSON(text)))
	if err != nil {
		return nil, &models.MalformedPayloadError{Source: s.Kind(), Kind: req.Kind, Err: err}
	}
	return payload, nil
}

// buildPrompt renders the feature request as an instruction for the model.
// The exact wording is not part of the contract; only the requested output
// shape matters.
func buildPrompt(req models.AnalyticalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce a JSON object for a geopolitical %s analysis.", req.Kind)
	if len(req.Parameters) > 0 {
		if params, err := json.Marshal(req.Parameters); err == nil {
			fmt.Fprintf(&b, " Request parameters: %s.", params)
		}
	}
	b.WriteString(" Respond with JSON only, no prose.")
	return b.String()
}

// extractJSON strips common markdown fencing around model output. Anything
// else is left to the schema decoder to reject.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
