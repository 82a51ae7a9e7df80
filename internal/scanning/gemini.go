package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig configures the Gemini scanner
type GeminiConfig struct {
	APIKey       string
	Model        string
	Timeout      time.Duration // zero leaves the deadline to the caller
	MaxDimension int
}

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	maxDim  int
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	// Deterministic output: the same label should read the same way twice
	model.SetTemperature(0)
	model.SetTopK(1)
	model.SetTopP(1)
	model.SetMaxOutputTokens(1024)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
		maxDim:  cfg.MaxDimension,
	}, nil
}

// ScanLabel analyzes a parcel label and extracts the raw field guesses
func (g *Gemini) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*RawExtraction, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	finalImageData, _, err := prepareImageData(imageData, contentType, g.maxDim)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", finalImageData),
		genai.Text(labelScanPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseLabelJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing label data: %w", err)
	}

	return data, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
