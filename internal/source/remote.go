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

// RemoteClient calls the per-feature remote analysis functions. The wire
// contract is a {data, error} envelope: absence of error and presence of data
// signals success.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteClient constructs a client targeting the configured function host.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Invoke calls the remote function for the given kind and returns the raw
// payload bytes from the envelope.
func (c *RemoteClient) Invoke(ctx context.Context, kind models.RequestKind, params map[string]any) (json.RawMessage, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("remote function host not configured")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	url := fmt.Sprintf("%s/functions/%s", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote function %s returned %d: %s", kind, resp.StatusCode, snippet)
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("remote function %s errored: %s", kind, envelope.Error)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, fmt.Errorf("remote function %s returned no data", kind)
	}
	return envelope.Data, nil
}

// RemoteSource adapts RemoteClient to the Source interface, gated by the
// general-purpose rate limiter.
type RemoteSource struct {
	client  *RemoteClient
	limiter *ratelimit.Limiter
}

// NewRemoteSource wraps a remote client as the first-priority source.
func NewRemoteSource(client *RemoteClient, limiter *ratelimit.Limiter) *RemoteSource {
	return &RemoteSource{client: client, limiter: limiter}
}

// Kind identifies this source as the remote function tier.
func (s *RemoteSource) Kind() models.SourceKind { return models.SourceRemoteFunction }

// Attempt invokes the remote function and decodes its payload.
func (s *RemoteSource) Attempt(ctx context.Context, req models.AnalyticalRequest) (models.Payload, error) {
	var raw json.RawMessage
	call := func(ctx context.Context) error {
		var err error
		raw, err = s.client.Invoke(ctx, req.Kind, req.Parameters)
		return err
	}
	if s.limiter != nil {
		if err := s.limiter.Do(ctx, call); err != nil {
			return nil, err
		}
	} else if err := call(ctx); err != nil {
		return nil, err
	}
	return DecodePayload(req.Kind, raw)
}
