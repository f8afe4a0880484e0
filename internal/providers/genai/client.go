// Package genai is a lightweight facade over the Gemini generate-content API
// so that provider adapters can focus on translating domain requests into
// calls. When a request carries no API key the client produces deterministic
// synthetic artifacts instead of calling out, which keeps the whole pipeline
// operational in local and CI environments.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyreel/internal/infra"
	"storyreel/internal/providers"
)

// ProviderName identifies this provider family in credentials and errors.
const ProviderName = "gemini"

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client issues generate-content calls against Gemini. The API key is passed
// per call so the credential rotator stays in charge of which key each call
// uses.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient validates options and constructs a client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("genai: invalid base url: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	Temperature        float64  `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateText returns the text completion for prompt.
func (c *Client) GenerateText(ctx context.Context, apiKey, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return syntheticText(prompt), nil
	}
	resp, err := c.invoke(ctx, apiKey, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", providers.NewError(providers.KindTransient, ProviderName, "empty text response")
}

// GenerateMedia returns raw bytes of the requested modality ("IMAGE",
// "AUDIO" or "VIDEO") for prompt.
func (c *Client) GenerateMedia(ctx context.Context, apiKey, prompt, modality, mime string) ([]byte, error) {
	if strings.TrimSpace(apiKey) == "" {
		return SyntheticBytes(modality, prompt), nil
	}
	resp, err := c.invoke(ctx, apiKey, generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{modality}},
	})
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if mime != "" && p.InlineData.MimeType != "" && !strings.HasPrefix(p.InlineData.MimeType, mime) {
				continue
			}
			data, decErr := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if decErr != nil {
				return nil, fmt.Errorf("genai: decode inline data: %w", decErr)
			}
			return data, nil
		}
	}
	return nil, providers.NewError(providers.KindTransient, ProviderName, "response carried no "+strings.ToLower(modality)+" data")
}

func (c *Client) invoke(ctx context.Context, apiKey string, reqBody generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NewError(providers.KindTransient, ProviderName, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, providers.NewError(providers.KindTransient, ProviderName, "read response: "+err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.Warn().Int("status", resp.StatusCode).Str("model", c.model).Msg("genai: request rejected")
		}
		return nil, providers.FromStatus(ProviderName, resp.StatusCode, truncate(string(body), 512))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, providers.NewError(providers.KindTransient, ProviderName, "decode response: "+err.Error())
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, providers.NewError(providers.KindContentFiltered, ProviderName, "blocked: "+out.PromptFeedback.BlockReason)
	}
	for _, cand := range out.Candidates {
		if strings.EqualFold(cand.FinishReason, "SAFETY") {
			return nil, providers.NewError(providers.KindContentFiltered, ProviderName, "candidate stopped for safety")
		}
	}
	return &out, nil
}

// SyntheticBytes derives a deterministic pseudo-artifact from the prompt so
// generated keys and sizes are stable across runs without an API key.
func SyntheticBytes(modality, prompt string) []byte {
	seed := sha256.Sum256([]byte(modality + "\x00" + prompt))
	size := 4096
	switch modality {
	case "AUDIO":
		size = 16384
	case "VIDEO":
		size = 65536
	}
	out := make([]byte, size)
	cur := seed
	for i := 0; i < size; i += len(cur) {
		cur = sha256.Sum256(cur[:])
		copy(out[i:], cur[:])
	}
	return out
}

func syntheticText(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("synthetic response %x", sum[:6])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
