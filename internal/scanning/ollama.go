package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaConfig configures the Ollama scanner
type OllamaConfig struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxDimension int
}

// Ollama implements the Scanner interface using Ollama
type Ollama struct {
	baseURL string
	model   string
	maxDim  int
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner instance
// Recommended vision models for label reading:
//   - qwen2.5vl (strong OCR)
//   - llava:1.6
//   - llama3.2-vision
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llava"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second // vision models are slow on desk hardware
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}

	return &Ollama{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		maxDim:  cfg.MaxDimension,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanLabel analyzes a parcel label and extracts the raw field guesses
func (o *Ollama) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*RawExtraction, error) {
	finalImageData, _, err := prepareImageData(imageData, contentType, o.maxDim)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0,
		},
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading shipping labels. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: labelScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(finalImageData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	data, err := parseLabelJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing label data: %w", err)
	}

	return data, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
