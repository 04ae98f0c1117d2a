package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pantrypal/pantry-tracker/internal/capture"
)

// Gemini implements Analyzer using Google Gemini. The client is
// constructed once at startup and threaded in; there is no ambient
// package-level client state.
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a new Gemini analyzer.
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrAuthConfig)
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
	}, nil
}

// Classify runs the classify phase with the small token budget.
func (g *Gemini) Classify(ctx context.Context, img *capture.Image) (Classification, error) {
	text, err := g.generate(ctx, img, classifyPrompt, classifyMaxTokens)
	if err != nil {
		return Classification{}, err
	}
	return ParseClassification(text), nil
}

// Extract runs the extract phase with the type-specific prompt and
// budget.
func (g *Gemini) Extract(ctx context.Context, img *capture.Image, kind Kind) (*Result, error) {
	prompt, maxTokens := promptFor(kind)
	text, err := g.generate(ctx, img, prompt, maxTokens)
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

func (g *Gemini) generate(ctx context.Context, img *capture.Image, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	model := g.client.GenerativeModel(g.modelName)
	model.SetMaxOutputTokens(int32(maxTokens))

	parts := []genai.Part{
		genai.ImageData("jpeg", img.Data),
		genai.Text(prompt),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", mapAPIError(err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &UnparseableError{Raw: ""}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return strings.TrimSpace(responseText.String()), nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
