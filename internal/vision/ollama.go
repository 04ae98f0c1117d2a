package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pantrypal/pantry-tracker/internal/capture"
)

// Ollama implements Analyzer against a local Ollama instance, for
// running the pipeline without a hosted API key.
//
// Recommended vision models: llava:1.6 (best balance), qwen2-vl:7b
// (good OCR), bakllava.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama analyzer.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Classify runs the classify phase with the small token budget.
func (o *Ollama) Classify(ctx context.Context, img *capture.Image) (Classification, error) {
	text, err := o.generate(ctx, img, classifyPrompt, classifyMaxTokens)
	if err != nil {
		return Classification{}, err
	}
	return ParseClassification(text), nil
}

// Extract runs the extract phase with the type-specific prompt and
// budget.
func (o *Ollama) Extract(ctx context.Context, img *capture.Image, kind Kind) (*Result, error) {
	prompt, maxTokens := promptFor(kind)
	text, err := o.generate(ctx, img, prompt, maxTokens)
	if err != nil {
		return nil, err
	}

	if kind == KindReceipt {
		data, err := ParseReceipt(text)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindReceipt, Receipt: data}, nil
	}

	data, err := ParseProduct(text)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindProduct, Product: data}, nil
}

func (o *Ollama) generate(ctx context.Context, img *capture.Image, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading grocery receipts and product packaging. You carefully read all text in images and answer with the exact JSON shape requested.",
			},
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{img.Base64()},
			},
		},
		Options: ollamaOptions{NumPredict: maxTokens},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", mapAPIError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", mapStatusCode(resp.StatusCode, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}

// Close closes the Ollama analyzer (no-op for an HTTP client).
func (o *Ollama) Close() error {
	return nil
}
