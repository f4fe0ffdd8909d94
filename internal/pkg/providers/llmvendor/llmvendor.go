// Package llmvendor registers the concrete LLM vendor adapters available
// to the Smart Selector. Each adapter speaks an OpenAI-compatible chat
// completions HTTP API, which covers a wide range of hosted and
// self-hosted model gateways without vendor-specific SDKs.
package llmvendor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/cenkalti/backoff/v4"
)

func init() {
	must(registry.Default.Register(registry.Registration{
		ServiceType:  provider.ServiceLLM,
		ProviderName: "vendor_gamma",
		Metadata: registry.Metadata{
			DisplayName:        "Vendor Gamma LLM",
			CostPerUnit:        0.000002, // per token, input+output blended
			SupportsStreaming:  true,
			SupportsMultiModel: true,
			DefaultModelID:     "gamma-standard",
			CredentialEnvVars:  []string{"LLM_VENDOR_GAMMA_URL", "LLM_VENDOR_GAMMA_KEY"},
		},
		Factory: func(o registry.Overrides) (any, error) {
			return newClient("vendor_gamma", os.Getenv("LLM_VENDOR_GAMMA_URL"), os.Getenv("LLM_VENDOR_GAMMA_KEY"), o.ModelID), nil
		},
	}))
	must(registry.Default.Register(registry.Registration{
		ServiceType:  provider.ServiceLLM,
		ProviderName: "vendor_delta",
		Metadata: registry.Metadata{
			DisplayName:        "Vendor Delta LLM",
			CostPerUnit:        0.000004,
			SupportsStreaming:  true,
			SupportsMultiModel: true,
			DefaultModelID:     "delta-large",
			CredentialEnvVars:  []string{"LLM_VENDOR_DELTA_URL", "LLM_VENDOR_DELTA_KEY"},
		},
		Factory: func(o registry.Overrides) (any, error) {
			return newClient("vendor_delta", os.Getenv("LLM_VENDOR_DELTA_URL"), os.Getenv("LLM_VENDOR_DELTA_KEY"), o.ModelID), nil
		},
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

func newClient(name, baseURL, apiKey, modelID string) *Client {
	return &Client{
		name: name, baseURL: baseURL, apiKey: apiKey, modelID: modelID,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

func (c *Client) ModelName() string { return c.modelID }

func (c *Client) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens+outputTokens) * 0.000002
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []provider.ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Chat implements provider.LLM.
func (c *Client) Chat(ctx context.Context, messages []provider.ChatMessage, params provider.GenParams) (string, error) {
	model := params.ModelID
	if model == "" {
		model = c.modelID
	}
	reqBody := chatRequest{Model: model, Messages: messages, Temperature: params.Temperature, MaxTokens: params.MaxTokens}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("can't marshal chat request: %w", err)
	}

	resp, err := goapp.InvokeWithBackoff(ctx, func() (*chatResponse, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call %s: %w", c.name, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 1024))
			_ = r.Body.Close()
		}()
		if r.StatusCode == http.StatusTooManyRequests {
			return nil, false, &provider.Error{Kind: provider.ErrQuotaExceeded, Provider: c.name, Cause: fmt.Errorf("rate limited")}
		}
		if r.StatusCode >= 500 {
			return nil, true, &provider.Error{Kind: provider.ErrTransient, Provider: c.name, Cause: fmt.Errorf("vendor status %d", r.StatusCode)}
		}
		if r.StatusCode >= 400 {
			return nil, false, &provider.Error{Kind: provider.ErrInvalidFormat, Provider: c.name, Cause: fmt.Errorf("vendor status %d", r.StatusCode)}
		}
		var cr chatResponse
		if err := json.NewDecoder(r.Body).Decode(&cr); err != nil {
			return nil, false, fmt.Errorf("can't decode vendor response: %w", err)
		}
		return &cr, false, nil
	}, c.backoff())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty completion", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate is Chat with a single user-role message, used by the
// single-prompt summary and visual generation calls.
func (c *Client) Generate(ctx context.Context, prompt string, params provider.GenParams) (string, error) {
	return c.Chat(ctx, []provider.ChatMessage{{Role: "user", Content: prompt}}, params)
}

// ChatStream opens an SSE stream and decodes each "data: {...}" frame into
// a StreamChunk, same framing every OpenAI-compatible gateway emits.
func (c *Client) ChatStream(ctx context.Context, messages []provider.ChatMessage, params provider.GenParams) (<-chan provider.StreamChunk, error) {
	model := params.ModelID
	if model == "" {
		model = c.modelID
	}
	reqBody := chatRequest{Model: model, Messages: messages, Temperature: params.Temperature, MaxTokens: params.MaxTokens, Stream: true}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("can't marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't open stream to %s: %w", c.name, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &provider.Error{Kind: provider.ErrTransient, Provider: c.name, Cause: fmt.Errorf("vendor status %d", resp.StatusCode)}
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				out <- provider.StreamChunk{Done: true}
				return
			}
			var frame struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				goapp.Log.Warn().Err(err).Str("vendor", c.name).Msg("can't decode stream frame")
				continue
			}
			if len(frame.Choices) > 0 {
				out <- provider.StreamChunk{Text: frame.Choices[0].Delta.Content}
			}
		}
	}()
	return out, nil
}
