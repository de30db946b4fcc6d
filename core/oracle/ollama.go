package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	ollamaTimeout    = 120 * time.Second
)

// Ollama generates text with a local Ollama server.
type Ollama struct {
	BaseURL string
	Model   string
	client  *http.Client
}

// NewOllama creates an Ollama oracle. An empty baseURL uses the default
// local server.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = ollamaTimeout
	}
	return &Ollama{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// ollamaRequest is the request body for the Ollama generate API.
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

// ollamaResponse is the response body from the Ollama generate API.
type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate calls /api/generate without streaming.
func (o *Ollama) Generate(ctx context.Context, prompt core.Prompt) (string, error) {
	bodyBytes, err := json.Marshal(ollamaRequest{
		Model:  o.Model,
		Prompt: prompt.User,
		System: prompt.System,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", Classify(fmt.Errorf("calling Ollama API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", Classify(&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", Classify(fmt.Errorf("decoding response: %w", err))
	}
	if result.Error != "" {
		return "", Classify(fmt.Errorf("ollama: %s", result.Error))
	}
	return result.Response, nil
}
