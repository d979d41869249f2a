package providers

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

const geminiAPIVersion = "v1beta"

// Gemini calls the Google Generative Language API through the genai SDK.
type Gemini struct {
	guard
	client *genai.Client
	opts   Options
}

// NewGemini builds the SDK client up front. A blank key, or a client the SDK
// refuses to build, leaves the adapter unconfigured.
func NewGemini(log *slog.Logger, opts Options) *Gemini {
	if opts.Name == "" {
		opts.Name = "Gemini"
	}
	p := &Gemini{opts: opts}
	var initErr error
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		p.client, initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:     key,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: opts.HTTPClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    opts.BaseURL,
				APIVersion: geminiAPIVersion,
			},
		})
	}
	p.guard = newGuard(log, opts, p.client != nil)
	if initErr != nil {
		p.logger.Warn("client init failed", slog.Any("error", initErr))
	}
	return p
}

func (p *Gemini) Call(ctx context.Context, prompt string) Result {
	return p.run(ctx, prompt, p.complete)
}

func (p *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(p.opts.Temperature)),
	}
	if p.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.opts.MaxTokens)
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
