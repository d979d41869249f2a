package channel

import (
	"context"
	"log/slog"
)

// IgnoreBots drops messages authored by bots before they take a slot in the
// inbound queue. This keeps the bot from answering itself or other bots.
func IgnoreBots(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next InboundHandler) InboundHandler {
		return func(ctx context.Context, msg InboundMessage) error {
			if msg.Sender.IsBot {
				log.Debug("inbound from bot ignored",
					slog.String("channel", msg.Channel.String()),
					slog.String("user", msg.UserKey()),
					slog.String("message_id", msg.ID))
				return nil
			}
			return next(ctx, msg)
		}
	}
}
