package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxInlineLength is the longest reply, in characters, sent as message text.
	MaxInlineLength = 1900
	// AttachmentCaption accompanies replies delivered as a file.
	AttachmentCaption = "📄 Response was too long, see the attached file."
	// AttachmentName is the file name shown to users for long replies.
	AttachmentName = "response.txt"
)

// NeedsAttachment reports whether text exceeds MaxInlineLength characters.
func NeedsAttachment(text string) bool {
	return utf8.RuneCountInString(text) > MaxInlineLength
}

// OutboundPolicy configures retries for outbound sends.
type OutboundPolicy struct {
	RetryMax     int
	RetryBackoff time.Duration
}

// NormalizeOutboundPolicy fills zero-value fields with defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = 500 * time.Millisecond
	}
	return policy
}

// Sender is the subset of Adapter needed to deliver messages.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, msg OutboundMessage) error
}

// Deliverer sends replies, falling back to a text file attachment when the
// reply is too long for one message.
type Deliverer struct {
	logger  *slog.Logger
	policy  OutboundPolicy
	tempDir string
}

// NewDeliverer creates a Deliverer. An empty tempDir uses os.TempDir.
func NewDeliverer(log *slog.Logger, policy OutboundPolicy, tempDir string) *Deliverer {
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{
		logger:  log.With(slog.String("component", "outbound")),
		policy:  NormalizeOutboundPolicy(policy),
		tempDir: tempDir,
	}
}

// DeliverReply answers inbound with text. Long text is written to a
// temporary file that is removed after the send, successful or not.
func (d *Deliverer) DeliverReply(ctx context.Context, sender Sender, inbound InboundMessage, text string) error {
	if sender == nil {
		return errors.New("sender is nil")
	}
	msg := OutboundMessage{Target: inbound.ReplyTarget}
	if strings.TrimSpace(inbound.ID) != "" {
		msg.Reply = &ReplyRef{MessageID: inbound.ID}
	}
	if !NeedsAttachment(text) {
		msg.Text = text
		return d.Send(ctx, sender, msg)
	}

	path, err := d.writeTempFile(text)
	if err != nil {
		return fmt.Errorf("write reply attachment: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("remove reply attachment failed", slog.String("path", path), slog.Any("error", err))
		}
	}()
	msg.Text = AttachmentCaption
	msg.Attachments = []Attachment{{
		Name:        AttachmentName,
		Path:        path,
		ContentType: "text/plain; charset=utf-8",
	}}
	d.logger.Info("reply sent as attachment",
		slog.String("channel", sender.Type().String()),
		slog.Int("chars", utf8.RuneCountInString(text)))
	return d.Send(ctx, sender, msg)
}

func (d *Deliverer) writeTempFile(text string) (string, error) {
	f, err := os.CreateTemp(d.tempDir, "response-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Send delivers msg, retrying with linear backoff.
func (d *Deliverer) Send(ctx context.Context, sender Sender, msg OutboundMessage) error {
	if strings.TrimSpace(msg.Target) == "" {
		return errors.New("target is required")
	}
	if msg.IsEmpty() {
		return errors.New("message is required")
	}
	var lastErr error
	for i := 0; i < d.policy.RetryMax; i++ {
		err := sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		d.logger.Warn("send outbound retry",
			slog.String("channel", sender.Type().String()),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
		if i == d.policy.RetryMax-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("send outbound canceled: %w", errors.Join(lastErr, ctx.Err()))
		case <-time.After(time.Duration(i+1) * d.policy.RetryBackoff):
		}
	}
	return fmt.Errorf("send outbound failed after retries: %w", lastErr)
}
