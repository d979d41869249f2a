// Package dispatch turns one user prompt into a merged multi-provider reply.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/askbot/internal/classify"
	"github.com/memohai/askbot/internal/providers"
)

const (
	// Separator is placed between rendered provider blocks.
	Separator = "\n\n---\n\n"
	// NoProvidersText is returned when no provider was selected for a prompt.
	NoProvidersText = "No providers available for this prompt."
	// DefaultHistoryCap bounds per-user history when Options leaves it unset.
	DefaultHistoryCap = 10
)

// HistoryStore is the slice of the memory store the dispatcher needs.
type HistoryStore interface {
	Get(userID string) []string
	Append(userID, prompt string, limit int) error
}

// Options tunes a Dispatcher.
type Options struct {
	HistoryCap int
}

// Dispatcher fans a prompt out to the primary provider plus one provider
// per matched task category, then merges the answers.
type Dispatcher struct {
	store   HistoryStore
	primary providers.Provider
	routes  map[classify.Category]providers.Provider
	cap     int
	logger  *slog.Logger
}

// New builds a Dispatcher. primary may be nil; routes may omit categories.
func New(log *slog.Logger, store HistoryStore, primary providers.Provider, routes map[classify.Category]providers.Provider, opts Options) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	limit := opts.HistoryCap
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	copied := make(map[classify.Category]providers.Provider, len(routes))
	for category, p := range routes {
		if p != nil {
			copied[category] = p
		}
	}
	return &Dispatcher{
		store:   store,
		primary: primary,
		routes:  copied,
		cap:     limit,
		logger:  log.With(slog.String("component", "dispatch")),
	}
}

// Plan returns the providers a prompt would be sent to, in call-issue order.
func (d *Dispatcher) Plan(c classify.Classification) []providers.Provider {
	plan := make([]providers.Provider, 0, 1+len(classify.Categories))
	if d.primary != nil {
		plan = append(plan, d.primary)
	}
	for _, category := range c.Flags() {
		if p, ok := d.routes[category]; ok {
			plan = append(plan, p)
		}
	}
	return plan
}

// Dispatch answers prompt for userID and records it in the user's history.
// Provider failures show up as placeholder text; only a history write
// failure is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, prompt string) (string, error) {
	requestID := uuid.NewString()
	log := d.logger.With(slog.String("request_id", requestID), slog.String("user_id", userID))
	started := time.Now()

	history := d.store.Get(userID)
	fullPrompt := strings.Join(append(history, prompt), "\n")
	classification := classify.Classify(fullPrompt)
	plan := d.Plan(classification)

	log.Info("dispatch start",
		slog.Int("history", len(history)),
		slog.Any("categories", classification.Flags()),
		slog.Int("providers", len(plan)),
	)

	results := Gather(ctx, plan, fullPrompt)
	merged := Render(results)

	if err := d.store.Append(userID, prompt, d.cap); err != nil {
		log.Error("dispatch history append failed", slog.Any("error", err))
		return "", fmt.Errorf("dispatch: %w", err)
	}

	log.Info("dispatch done", slog.Duration("elapsed", time.Since(started)), slog.Int("chars", utf8.RuneCountInString(merged)))
	return merged, nil
}

// Gather calls every provider concurrently with the same prompt and waits
// for all of them. Results come back sorted by confidence, highest first;
// ties keep call-issue order.
func Gather(ctx context.Context, plan []providers.Provider, prompt string) []providers.Result {
	results := make([]providers.Result, len(plan))
	var g errgroup.Group
	for i, p := range plan {
		g.Go(func() error {
			results[i] = p.Call(ctx, prompt)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// Render formats results as "<source>:\n<text>" blocks joined by Separator.
func Render(results []providers.Result) string {
	if len(results) == 0 {
		return NoProvidersText
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Source+":\n"+r.Text)
	}
	return strings.Join(blocks, Separator)
}
