package providers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// Ollama calls a self-hosted Ollama server. It has no API key; an empty or
// unparseable BaseURL counts as the missing credential.
type Ollama struct {
	guard
	client *api.Client
	opts   Options
}

func NewOllama(log *slog.Logger, opts Options) *Ollama {
	if opts.Name == "" {
		opts.Name = "Ollama"
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	p := &Ollama{opts: opts}
	if opts.BaseURL != "" {
		if base, err := url.Parse(opts.BaseURL); err == nil && base.Host != "" {
			hc := opts.HTTPClient
			if hc == nil {
				hc = http.DefaultClient
			}
			p.client = api.NewClient(base, hc)
		}
	}
	p.guard = newGuard(log, opts, p.client != nil)
	return p
}

func (p *Ollama) Call(ctx context.Context, prompt string) Result {
	return p.run(ctx, prompt, p.complete)
}

func (p *Ollama) complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  p.opts.Model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": p.opts.Temperature,
		},
	}
	if p.opts.MaxTokens > 0 {
		req.Options["num_predict"] = p.opts.MaxTokens
	}
	var sb strings.Builder
	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
