package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_MissingCredentialSkipsCall(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "Claude", Confidence: 0.95}, false)
	called := false
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "unreachable", nil
	})
	assert.False(t, called)
	assert.Equal(t, Result{Source: "Claude", Text: "[Claude API missing]"}, res)
}

func TestGuard_ErrorBecomesFailedSentinel(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "GPT", Confidence: 0.9}, true)
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("boom")
	})
	assert.Equal(t, Result{Source: "GPT", Text: "[GPT failed]"}, res)
}

func TestGuard_EmptyTextBecomesFailedSentinel(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "GPT", Confidence: 0.9}, true)
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		return "   ", nil
	})
	assert.Equal(t, "[GPT failed]", res.Text)
	assert.Zero(t, res.Confidence)
}

func TestGuard_PanicBecomesFailedSentinel(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "Gemini", Confidence: 0.85}, true)
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		panic("bad adapter")
	})
	assert.Equal(t, Result{Source: "Gemini", Text: "[Gemini failed]"}, res)
}

func TestGuard_TimeoutBecomesTimeoutSentinel(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "Ollama", Confidence: 0.8, Timeout: 20 * time.Millisecond}, true)
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.Equal(t, Result{Source: "Ollama", Text: "[Ollama timed out]"}, res)
}

func TestGuard_SuccessCarriesConfidence(t *testing.T) {
	t.Parallel()

	g := newGuard(nil, Options{Name: "Claude", Confidence: 0.95}, true)
	res := g.run(context.Background(), "hi", func(ctx context.Context, prompt string) (string, error) {
		return "  hello  \n", nil
	})
	assert.Equal(t, Result{Source: "Claude", Text: "hello", Confidence: 0.95}, res)
	assert.Equal(t, "Claude", g.Name())
	assert.InDelta(t, 0.95, g.Confidence(), 1e-9)
}
