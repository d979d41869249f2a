// Package memorychecker verifies the history file can be written.
package memorychecker

import (
	"context"

	"github.com/memohai/askbot/internal/healthcheck"
)

const checkTypeMemory = "memory.storage"

// Store is the part of the history store the check needs.
type Store interface {
	Path() string
	Writable() error
}

// Checker reports whether the history file's directory accepts writes.
type Checker struct {
	store Store
}

// NewChecker creates a memory checker.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// ListChecks returns a single item for the store.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:      checkTypeMemory,
		Type:    checkTypeMemory,
		Status:  healthcheck.StatusOK,
		Summary: "History file is writable.",
	}
	if c.store == nil {
		item.Status = healthcheck.StatusWarn
		item.Summary = "History store is not available."
		return []healthcheck.CheckResult{item}
	}
	item.Subtitle = c.store.Path()
	if err := c.store.Writable(); err != nil {
		item.Status = healthcheck.StatusError
		item.Summary = "History file is not writable."
		item.Detail = err.Error()
	}
	return []healthcheck.CheckResult{item}
}
