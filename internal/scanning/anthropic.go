package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic implements the Extractor interface using the Claude Messages API.
// PDFs are sent natively; images are converted to PNG first.
type Anthropic struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic creates a new Anthropic Extractor. baseURL may be empty.
// SDK retries are disabled; callers account for retries themselves.
func NewAnthropic(apiKey, modelName, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Anthropic{
		client:    sdk.NewClient(opts...),
		model:     modelName,
		maxTokens: 8192,
		timeout:   90 * time.Second,
	}, nil
}

// Extract sends the document and the extraction prompt in one user turn
func (a *Anthropic) Extract(ctx context.Context, doc Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	blocks, err := documentBlocks(doc)
	if err != nil {
		return "", err
	}
	blocks = append(blocks, sdk.NewTextBlock(userPrompt(doc.Type)))

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
		Temperature: sdk.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var responseText strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}

	return cleanResponseText(responseText.String())
}

func documentBlocks(doc Document) ([]sdk.ContentBlockParamUnion, error) {
	if normalizeMIME(doc.ContentType) == mimePDF {
		return []sdk.ContentBlockParamUnion{
			sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
				Data: base64.StdEncoding.EncodeToString(doc.Data),
			}),
		}, nil
	}

	pages, err := preparePages(doc.Data, doc.ContentType)
	if err != nil {
		return nil, err
	}
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(pages)+1)
	for _, page := range pages {
		blocks = append(blocks, sdk.NewImageBlockBase64(mimePNG, base64.StdEncoding.EncodeToString(page)))
	}
	return blocks, nil
}

// Close is a no-op; the SDK client holds no resources
func (a *Anthropic) Close() error {
	return nil
}
