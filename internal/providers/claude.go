package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude calls the Anthropic Messages API.
type Claude struct {
	guard
	client *anthropic.Client
	opts   Options
}

func NewClaude(log *slog.Logger, opts Options) *Claude {
	if opts.Name == "" {
		opts.Name = "Claude"
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Claude{
		guard:  newGuard(log, opts, strings.TrimSpace(opts.APIKey) != ""),
		client: &client,
		opts:   opts,
	}
}

func (p *Claude) Call(ctx context.Context, prompt string) Result {
	return p.run(ctx, prompt, p.complete)
}

func (p *Claude) complete(ctx context.Context, prompt string) (string, error) {
	maxTokens := int64(p.opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 600
	}
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.opts.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}
