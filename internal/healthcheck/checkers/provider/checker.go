// Package providerchecker reports which model providers can be called.
package providerchecker

import (
	"context"
	"fmt"

	"github.com/memohai/askbot/internal/healthcheck"
)

const checkTypeProvider = "provider.credential"

// Provider is the view of a model provider needed for health checks.
type Provider interface {
	Name() string
	Confidence() float64
	Configured() bool
}

// Checker reports one item per provider.
type Checker struct {
	providers []Provider
}

// NewChecker creates a provider checker. Nil entries are skipped.
func NewChecker(providers ...Provider) *Checker {
	items := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			items = append(items, p)
		}
	}
	return &Checker{providers: items}
}

// ListChecks marks providers without credentials as warnings: they still
// answer, with a placeholder.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	checks := make([]healthcheck.CheckResult, 0, len(c.providers))
	for _, p := range c.providers {
		item := healthcheck.CheckResult{
			ID:       checkTypeProvider + "." + p.Name(),
			Type:     checkTypeProvider,
			Subtitle: p.Name(),
			Status:   healthcheck.StatusOK,
			Summary:  fmt.Sprintf("Provider %s is configured.", p.Name()),
			Metadata: map[string]any{"confidence": p.Confidence()},
		}
		if !p.Configured() {
			item.Status = healthcheck.StatusWarn
			item.Summary = fmt.Sprintf("Provider %s has no credential.", p.Name())
		}
		checks = append(checks, item)
	}
	return checks
}
