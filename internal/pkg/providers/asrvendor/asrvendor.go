// Package asrvendor registers the concrete ASR vendor adapters available
// to the Smart Selector. Each adapter speaks a vendor's synchronous HTTP
// transcription API: upload audio, block for the result, map the
// response onto provider.TranscribeResult.
package asrvendor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/cenkalti/backoff/v4"
)

func init() {
	must(registry.Default.Register(registry.Registration{
		ServiceType:  provider.ServiceASR,
		ProviderName: "vendor_alpha",
		Metadata: registry.Metadata{
			DisplayName:       "Vendor Alpha ASR",
			CostPerUnit:       0.0001, // per second
			Variants:          []string{string(provider.VariantFile), string(provider.VariantFileFast)},
			CredentialEnvVars: []string{"ASR_VENDOR_ALPHA_URL", "ASR_VENDOR_ALPHA_KEY"},
		},
		Factory: func(registry.Overrides) (any, error) {
			return newClient("vendor_alpha", os.Getenv("ASR_VENDOR_ALPHA_URL"), os.Getenv("ASR_VENDOR_ALPHA_KEY")), nil
		},
	}))
	must(registry.Default.Register(registry.Registration{
		ServiceType:  provider.ServiceASR,
		ProviderName: "vendor_beta",
		Metadata: registry.Metadata{
			DisplayName:       "Vendor Beta ASR",
			CostPerUnit:       0.00015,
			Variants:          []string{string(provider.VariantFile), string(provider.VariantStreamAsync)},
			CredentialEnvVars: []string{"ASR_VENDOR_BETA_URL", "ASR_VENDOR_BETA_KEY"},
		},
		Factory: func(registry.Overrides) (any, error) {
			return newClient("vendor_beta", os.Getenv("ASR_VENDOR_BETA_URL"), os.Getenv("ASR_VENDOR_BETA_KEY")), nil
		},
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Client is a thin synchronous wrapper over a vendor's transcribe-by-upload
// HTTP endpoint; the vendor is expected to block the request until the
// transcript is ready, same contract the orchestrator's ASR stage relies on.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

func newClient(name, baseURL, apiKey string) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Minute,
			Transport: tunedTransport(),
		},
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

func tunedTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = 20
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	return t
}

type vendorSegment struct {
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Words      []struct {
		Word       string   `json:"word"`
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Confidence *float64 `json:"confidence,omitempty"`
	} `json:"words,omitempty"`
}

type vendorResponse struct {
	Segments        []vendorSegment `json:"segments"`
	DurationSeconds float64         `json:"duration_seconds"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Transcribe implements provider.ASR.
func (c *Client) Transcribe(ctx context.Context, audio provider.AudioSource, opts provider.TranscribeOptions) (*provider.TranscribeResult, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("can't build multipart form: %w", err)
	}
	if _, err := io.Copy(part, audio.Reader); err != nil {
		return nil, fmt.Errorf("can't copy audio into form: %w", err)
	}
	_ = w.WriteField("language", opts.Language)
	_ = w.WriteField("diarization", fmt.Sprintf("%t", opts.EnableSpeakerDiarization))
	_ = w.WriteField("variant", string(opts.Variant))
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("can't close form: %w", err)
	}

	result, err := goapp.InvokeWithBackoff(ctx, func() (*vendorResponse, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call %s: %w", c.name, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, false, &provider.Error{Kind: provider.ErrQuotaExceeded, Provider: c.name, Cause: fmt.Errorf("rate limited")}
		}
		if resp.StatusCode >= 500 {
			return nil, true, &provider.Error{Kind: provider.ErrTransient, Provider: c.name, Cause: fmt.Errorf("vendor status %d", resp.StatusCode)}
		}
		if resp.StatusCode >= 400 {
			return nil, false, &provider.Error{Kind: provider.ErrInvalidFormat, Provider: c.name, Cause: fmt.Errorf("vendor status %d", resp.StatusCode)}
		}
		var vr vendorResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return nil, false, fmt.Errorf("can't decode vendor response: %w", err)
		}
		return &vr, false, nil
	}, c.backoff())
	if err != nil {
		return nil, err
	}

	segs := make([]provider.TranscriptSegment, 0, len(result.Segments))
	for _, s := range result.Segments {
		words := make([]provider.WordTiming, 0, len(s.Words))
		for _, ww := range s.Words {
			words = append(words, provider.WordTiming{Word: ww.Word, Start: ww.Start, End: ww.End, Confidence: ww.Confidence})
		}
		segs = append(segs, provider.TranscriptSegment{SpeakerID: s.SpeakerID, Start: s.Start, End: s.End,
			Content: s.Text, Confidence: s.Confidence, Words: words})
	}
	dur := result.DurationSeconds
	if dur == 0 {
		dur = audio.DurationHint
	}
	return &provider.TranscribeResult{Segments: segs, DurationSeconds: dur}, nil
}
