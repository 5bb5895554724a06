package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	return &Gemini{
		client:  client,
		model:   model,
		timeout: 60 * time.Second,
	}, nil
}

// Extract renders the document to PNG pages and asks Gemini for line items
func (g *Gemini) Extract(ctx context.Context, doc Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pages, err := preparePages(doc.Data, doc.ContentType)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects the format suffix ("png"), not the MIME type
	parts := make([]genai.Part, 0, len(pages)+1)
	for _, page := range pages {
		parts = append(parts, genai.ImageData("png", page))
	}
	parts = append(parts, genai.Text(userPrompt(doc.Type)))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return cleanResponseText(responseText.String())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
