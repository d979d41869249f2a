package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// GPT calls an OpenAI-compatible Chat Completions endpoint.
type GPT struct {
	guard
	client *openai.Client
	opts   Options
}

func NewGPT(log *slog.Logger, opts Options) *GPT {
	if opts.Name == "" {
		opts.Name = "GPT"
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(clientOpts...)
	return &GPT{
		guard:  newGuard(log, opts, strings.TrimSpace(opts.APIKey) != ""),
		client: &client,
		opts:   opts,
	}
}

func (p *GPT) Call(ctx context.Context, prompt string) Result {
	return p.run(ctx, prompt, p.complete)
}

func (p *GPT) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.opts.Model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(p.opts.Temperature),
	}
	if p.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.opts.MaxTokens))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
