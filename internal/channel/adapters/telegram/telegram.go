// Package telegram connects the bot to Telegram via long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/askbot/internal/channel"
)

// Type is the channel type for Telegram.
const Type channel.ChannelType = "telegram"

const telegramMaxMessageLength = 4096

// botAPI is the subset of *tgbotapi.BotAPI used for outbound traffic.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramAdapter implements channel.Adapter for Telegram.
type TelegramAdapter struct {
	logger *slog.Logger
	token  string
	mu     sync.Mutex
	bot    botAPI
}

// NewTelegramAdapter creates a TelegramAdapter for one bot token.
func NewTelegramAdapter(log *slog.Logger, token string) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		token:  strings.TrimSpace(token),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

func (a *TelegramAdapter) newBot() (*tgbotapi.BotAPI, error) {
	if a.token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	return bot, nil
}

func (a *TelegramAdapter) getOrCreateBot() (botAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	bot, err := a.newBot()
	if err != nil {
		return nil, err
	}
	a.bot = bot
	return bot, nil
}

// Connect starts long polling and forwards every text message to handler.
func (a *TelegramAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start")
	bot, err := a.newBot()
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.bot = bot
	a.mu.Unlock()
	a.logger.Info("logged in", slog.String("username", bot.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				msg, ok := toInbound(update.Message)
				if !ok {
					continue
				}
				a.logger.Info("inbound received",
					slog.String("chat_type", msg.Conversation.Type),
					slog.String("chat_id", msg.Conversation.ID),
					slog.String("user_id", msg.Sender.Attribute("user_id")),
					slog.String("username", msg.Sender.Attribute("username")),
					slog.String("text", channel.SummarizeText(msg.Text)),
				)
				if err := handler(connCtx, msg); err != nil {
					a.logger.Error("handle inbound failed", slog.Any("error", err))
				}
			}
		}
	}()

	stop := func(stopCtx context.Context) error {
		a.logger.Info("stop")
		bot.StopReceivingUpdates()
		cancel()
		return drainUpdates(stopCtx, updates)
	}
	return channel.NewConnection(Type, stop), nil
}

// toInbound converts a Telegram message. It reports false for bot senders
// and messages without text or caption.
func toInbound(m *tgbotapi.Message) (channel.InboundMessage, bool) {
	if m == nil {
		return channel.InboundMessage{}, false
	}
	if m.From != nil && m.From.IsBot {
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}
	if text == "" {
		return channel.InboundMessage{}, false
	}
	subjectID, displayName, attrs := resolveTelegramSender(m)
	chatID, chatType, chatName := "", "", ""
	if m.Chat != nil {
		chatID = strconv.FormatInt(m.Chat.ID, 10)
		chatType = strings.TrimSpace(m.Chat.Type)
		chatName = strings.TrimSpace(m.Chat.Title)
	}
	return channel.InboundMessage{
		Channel:     Type,
		ID:          strconv.Itoa(m.MessageID),
		Text:        text,
		ReplyTarget: chatID,
		Sender: channel.Identity{
			SubjectID:   subjectID,
			DisplayName: displayName,
			Attributes:  attrs,
		},
		Conversation: channel.Conversation{
			ID:   chatID,
			Type: chatType,
			Name: chatName,
		},
		ReceivedAt: time.Unix(int64(m.Date), 0).UTC(),
	}, true
}

func resolveTelegramSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.Chat != nil {
		attrs["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		userID := strconv.FormatInt(msg.From.ID, 10)
		username := strings.TrimSpace(msg.From.UserName)
		attrs["user_id"] = userID
		if username != "" {
			attrs["username"] = username
		}
		displayName := username
		if displayName == "" {
			displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
		return userID, displayName, attrs
	}
	if msg.SenderChat != nil {
		senderChatID := strconv.FormatInt(msg.SenderChat.ID, 10)
		attrs["sender_chat_id"] = senderChatID
		displayName := strings.TrimSpace(msg.SenderChat.Title)
		if displayName == "" {
			displayName = strings.TrimSpace(msg.SenderChat.UserName)
		}
		return senderChatID, displayName, attrs
	}
	return attrs["chat_id"], "", attrs
}

// Send delivers text, or a document with the text as caption.
func (a *TelegramAdapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	to := strings.TrimSpace(msg.Target)
	if to == "" {
		return fmt.Errorf("telegram target is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	if err := sendTelegramMessage(bot, to, msg); err != nil {
		a.logger.Error("send failed", slog.String("target", to), slog.Any("error", err))
		return err
	}
	return nil
}

func sendTelegramMessage(bot botAPI, target string, msg channel.OutboundMessage) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target %q: %w", target, err)
	}
	text := truncateTelegramText(sanitizeTelegramText(strings.TrimSpace(msg.Text)))
	replyTo := parseReplyToMessageID(msg.Reply)

	if len(msg.Attachments) == 0 {
		out := tgbotapi.NewMessage(chatID, text)
		out.ReplyToMessageID = replyTo
		_, err := bot.Send(out)
		return err
	}
	for i, att := range msg.Attachments {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(att.Path))
		if i == 0 {
			doc.Caption = text
			doc.ReplyToMessageID = replyTo
		}
		if _, err := bot.Send(doc); err != nil {
			return fmt.Errorf("send document %s: %w", att.Name, err)
		}
	}
	return nil
}

func parseReplyToMessageID(reply *channel.ReplyRef) int {
	if reply == nil {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(reply.MessageID))
	if err != nil {
		return 0
	}
	return value
}

func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength on a valid
// UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	if len(text) <= telegramMaxMessageLength {
		return text
	}
	const suffix = "..."
	limit := telegramMaxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

// ProcessingStarted sends a "typing" chat action.
func (a *TelegramAdapter) ProcessingStarted(ctx context.Context, msg channel.InboundMessage) (channel.ProcessingStatusHandle, error) {
	chatID := strings.TrimSpace(msg.ReplyTarget)
	if chatID == "" {
		return channel.ProcessingStatusHandle{}, nil
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return channel.ProcessingStatusHandle{}, err
	}
	return channel.ProcessingStatusHandle{}, sendTelegramTyping(bot, chatID)
}

// ProcessingCompleted is a no-op; the typing indicator clears itself.
func (a *TelegramAdapter) ProcessingCompleted(ctx context.Context, msg channel.InboundMessage, handle channel.ProcessingStatusHandle) error {
	return nil
}

func sendTelegramTyping(bot botAPI, chatID string) error {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = bot.Request(tgbotapi.NewChatAction(chatIDInt, tgbotapi.ChatTyping))
	return err
}

// drainUpdates empties updates until the library closes it, so a lingering
// getUpdates call does not conflict with the next connection using the same
// token. It gives up when ctx ends.
func drainUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return nil
			}
		}
	}
}
