// Package inbound turns gateway messages into prompts, runs them through the
// dispatcher and replies on the originating channel.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/memohai/askbot/internal/channel"
)

const processingStatusTimeout = 60 * time.Second

// ErrPanic wraps a recovered handler panic.
var ErrPanic = errors.New("inbound handler panic")

// Dispatcher answers a prompt for one user.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, prompt string) (string, error)
}

// Options configures a Processor.
type Options struct {
	// Prefix gates which messages are prompts. Empty accepts every message.
	Prefix          string
	ThinkingMessage string
	ErrorMessage    string
}

// Processor implements channel.InboundProcessor.
type Processor struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	deliverer  *channel.Deliverer
	opts       Options
}

// NewProcessor creates a Processor.
func NewProcessor(log *slog.Logger, dispatcher Dispatcher, deliverer *channel.Deliverer, opts Options) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if deliverer == nil {
		deliverer = channel.NewDeliverer(log, channel.OutboundPolicy{}, "")
	}
	return &Processor{
		logger:     log.With(slog.String("component", "inbound")),
		dispatcher: dispatcher,
		deliverer:  deliverer,
		opts:       opts,
	}
}

// ExtractPrompt returns the prompt carried by text. With a prefix, text must
// start with it followed by whitespace or the end of text; the trimmed
// remainder is the prompt and an empty remainder is rejected.
func ExtractPrompt(text, prefix string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return trimmed, trimmed != ""
	}
	if !strings.HasPrefix(trimmed, prefix) {
		return "", false
	}
	rest := trimmed[len(prefix):]
	if rest != "" {
		first := []rune(rest)[0]
		if !unicode.IsSpace(first) {
			return "", false
		}
	}
	prompt := strings.TrimSpace(rest)
	return prompt, prompt != ""
}

// HandleInbound processes one message. Bot authors are dropped earlier by
// channel.IgnoreBots. Dispatch failures and panics are answered with the
// apology text and never escape.
func (p *Processor) HandleInbound(ctx context.Context, msg channel.InboundMessage, adapter channel.Adapter) (err error) {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	prompt, ok := ExtractPrompt(msg.Text, p.opts.Prefix)
	if !ok {
		return nil
	}
	userID := msg.UserKey()
	log := p.logger.With(
		slog.String("channel", msg.Channel.String()),
		slog.String("user", userID),
		slog.String("message_id", msg.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("inbound handler panic", slog.Any("panic", r))
			p.apologize(ctx, adapter, msg, log)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if text := strings.TrimSpace(p.opts.ThinkingMessage); text != "" {
		if err := p.deliverer.DeliverReply(ctx, adapter, msg, text); err != nil {
			log.Warn("send thinking notice failed", slog.Any("error", err))
		}
	}

	notifier, _ := adapter.(channel.ProcessingStatusNotifier)
	handle, statusErr := p.notifyProcessingStarted(ctx, notifier, msg)
	p.logProcessingStatusError("processing_started", msg, statusErr)

	log.Info("prompt received", slog.String("prompt", channel.SummarizeText(prompt)))
	reply, dispatchErr := p.dispatcher.Dispatch(ctx, userID, prompt)

	statusErr = p.notifyProcessingCompleted(ctx, notifier, msg, handle)
	p.logProcessingStatusError("processing_completed", msg, statusErr)

	if dispatchErr != nil {
		log.Error("dispatch failed", slog.Any("error", dispatchErr))
		p.apologize(ctx, adapter, msg, log)
		return nil
	}
	if err := p.deliverer.DeliverReply(ctx, adapter, msg, reply); err != nil {
		log.Error("deliver reply failed", slog.Any("error", err))
		p.apologize(ctx, adapter, msg, log)
		return nil
	}
	return nil
}

func (p *Processor) apologize(ctx context.Context, adapter channel.Adapter, msg channel.InboundMessage, log *slog.Logger) {
	text := strings.TrimSpace(p.opts.ErrorMessage)
	if text == "" {
		return
	}
	if err := p.deliverer.DeliverReply(ctx, adapter, msg, text); err != nil {
		log.Error("send apology failed", slog.Any("error", err))
	}
}

func (p *Processor) notifyProcessingStarted(
	ctx context.Context,
	notifier channel.ProcessingStatusNotifier,
	msg channel.InboundMessage,
) (channel.ProcessingStatusHandle, error) {
	if notifier == nil {
		return channel.ProcessingStatusHandle{}, nil
	}
	statusCtx, cancel := context.WithTimeout(ctx, processingStatusTimeout)
	defer cancel()
	return notifier.ProcessingStarted(statusCtx, msg)
}

func (p *Processor) notifyProcessingCompleted(
	ctx context.Context,
	notifier channel.ProcessingStatusNotifier,
	msg channel.InboundMessage,
	handle channel.ProcessingStatusHandle,
) error {
	if notifier == nil {
		return nil
	}
	statusCtx, cancel := context.WithTimeout(ctx, processingStatusTimeout)
	defer cancel()
	return notifier.ProcessingCompleted(statusCtx, msg, handle)
}

func (p *Processor) logProcessingStatusError(stage string, msg channel.InboundMessage, err error) {
	if err == nil {
		return
	}
	p.logger.Warn(
		"processing status notify failed",
		slog.String("stage", stage),
		slog.String("channel", msg.Channel.String()),
		slog.String("user", msg.UserKey()),
		slog.Any("error", err),
	)
}
