// Package providers wraps third-party language-model APIs behind one
// contract: Call never fails. Errors, timeouts and missing credentials are
// turned into placeholder text with zero confidence.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ErrMissingCredential is reported when a provider has no key (or, for
// self-hosted providers, no endpoint) configured.
var ErrMissingCredential = errors.New("missing credential")

// ErrEmptyResponse is reported when a 2xx reply carries no usable text.
var ErrEmptyResponse = errors.New("empty response")

// Result is one provider's answer to a prompt.
type Result struct {
	Source     string
	Text       string
	Confidence float64
}

// Provider answers prompts. Call must always return a Result.
type Provider interface {
	Name() string
	Confidence() float64
	Call(ctx context.Context, prompt string) Result
}

// Options configures a single provider.
type Options struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Confidence  float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// MissingText is the placeholder used when a provider is not configured.
func MissingText(name string) string { return fmt.Sprintf("[%s API missing]", name) }

// FailedText is the placeholder used when a call fails.
func FailedText(name string) string { return fmt.Sprintf("[%s failed]", name) }

// TimeoutText is the placeholder used when a call exceeds its timeout.
func TimeoutText(name string) string { return fmt.Sprintf("[%s timed out]", name) }

type completeFunc func(ctx context.Context, prompt string) (string, error)

// guard implements the never-fail contract shared by every adapter.
type guard struct {
	name       string
	confidence float64
	timeout    time.Duration
	ready      bool
	logger     *slog.Logger
}

func newGuard(log *slog.Logger, opts Options, ready bool) guard {
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return guard{
		name:       opts.Name,
		confidence: opts.Confidence,
		timeout:    timeout,
		ready:      ready,
		logger:     log.With(slog.String("provider", opts.Name)),
	}
}

func (g guard) Name() string { return g.name }

func (g guard) Confidence() float64 { return g.confidence }

// Configured reports whether the provider has the credential it needs.
func (g guard) Configured() bool { return g.ready }

func (g guard) run(ctx context.Context, prompt string, fn completeFunc) (res Result) {
	if !g.ready {
		g.logger.Debug("provider skipped", slog.Any("error", ErrMissingCredential))
		return Result{Source: g.name, Text: MissingText(g.name)}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("provider panic", slog.Any("panic", r))
			res = Result{Source: g.name, Text: FailedText(g.name)}
		}
	}()

	text, err := fn(callCtx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("provider timed out", slog.Duration("timeout", g.timeout))
			return Result{Source: g.name, Text: TimeoutText(g.name)}
		}
		g.logger.Warn("provider call failed", slog.Duration("elapsed", time.Since(started)), slog.Any("error", err))
		return Result{Source: g.name, Text: FailedText(g.name)}
	}
	g.logger.Debug("provider call ok", slog.Duration("elapsed", time.Since(started)), slog.Int("chars", len(text)))
	return Result{Source: g.name, Text: strings.TrimSpace(text), Confidence: g.confidence}
}
