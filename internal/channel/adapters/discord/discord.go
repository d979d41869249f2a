// Package discord connects the bot to Discord through a discordgo gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/askbot/internal/channel"
)

// Type is the channel type for Discord.
const Type channel.ChannelType = "discord"

const inboundDedupTTL = time.Minute
const processingBusyReactionEmoji = "⏳"

// discordMaxLength is Discord's hard message limit.
const discordMaxLength = 2000

const intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent | discordgo.IntentsDirectMessages

type processingStatusSession interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emoji string, options ...discordgo.RequestOption) error
}

type messageSession interface {
	processingStatusSession
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionRemove(channelID, messageID, emoji, userID string, options ...discordgo.RequestOption) error
}

type DiscordAdapter struct {
	logger *slog.Logger
	token  string

	mu            sync.Mutex
	session       *discordgo.Session
	sender        messageSession
	handlerRemove func()
	seenMessages  map[string]time.Time
}

func NewDiscordAdapter(log *slog.Logger, token string) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordAdapter{
		logger:       log.With(slog.String("adapter", "discord")),
		token:        strings.TrimSpace(token),
		seenMessages: make(map[string]time.Time),
	}
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

func (a *DiscordAdapter) getOrCreateSession() (*discordgo.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return a.session, nil
	}
	if a.token == "" {
		return nil, errors.New("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return nil, err
	}
	session.Identify.Intents = intents
	a.session = session
	a.sender = session
	return session, nil
}

func (a *DiscordAdapter) messageSession() (messageSession, error) {
	a.mu.Lock()
	sender := a.sender
	a.mu.Unlock()
	if sender != nil {
		return sender, nil
	}
	if _, err := a.getOrCreateSession(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sender, nil
}

func (a *DiscordAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start")

	session, err := a.getOrCreateSession()
	if err != nil {
		return nil, err
	}

	a.swapHandlerRemover(a.addHandlers(ctx, session, handler))

	if err := session.Open(); err != nil {
		if remove := a.clearSessionState(); remove != nil {
			remove()
		}
		return nil, fmt.Errorf("discord open connection: %w", err)
	}

	stop := func(stopCtx context.Context) error {
		a.logger.Info("stop")
		if remove := a.clearSessionState(); remove != nil {
			remove()
		}
		return session.Close()
	}
	return channel.NewConnection(Type, stop), nil
}

// handlerRegistrar is the part of *discordgo.Session that installs event
// handlers.
type handlerRegistrar interface {
	AddHandler(handler interface{}) func()
}

// addHandlers installs the message and ready handlers and returns one func
// that removes both.
func (a *DiscordAdapter) addHandlers(ctx context.Context, reg handlerRegistrar, handler channel.InboundHandler) func() {
	removeMessage := reg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if a.isDuplicateInbound(m.ID) {
			return
		}
		msg, ok := toInbound(m.Message)
		if !ok {
			return
		}
		a.logger.Info("inbound received",
			slog.String("chat_type", msg.Conversation.Type),
			slog.String("user_id", msg.Sender.SubjectID),
			slog.String("username", msg.Sender.DisplayName),
			slog.String("text", channel.SummarizeText(msg.Text)),
		)
		if err := handler(ctx, msg); err != nil {
			a.logger.Error("handle inbound failed", slog.Any("error", err))
		}
	})
	removeReady := reg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if r != nil && r.User != nil {
			a.logger.Info("logged in", slog.String("username", r.User.Username))
		}
	})
	return func() {
		removeMessage()
		removeReady()
	}
}

// toInbound converts a Discord message to an InboundMessage. It reports
// false for bot authors and empty content.
func toInbound(m *discordgo.Message) (channel.InboundMessage, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return channel.InboundMessage{}, false
	}
	chatType := "direct"
	if m.GuildID != "" {
		chatType = "guild"
	}
	return channel.InboundMessage{
		Channel:     Type,
		ID:          m.ID,
		Text:        text,
		ReplyTarget: m.ChannelID,
		Sender: channel.Identity{
			SubjectID:   m.Author.ID,
			DisplayName: m.Author.Username,
			IsBot:       m.Author.Bot,
			Attributes: map[string]string{
				"user_id":  m.Author.ID,
				"username": m.Author.Username,
				"guild_id": m.GuildID,
			},
		},
		Conversation: channel.Conversation{
			ID:   m.ChannelID,
			Type: chatType,
		},
		ReceivedAt: time.Now().UTC(),
	}, true
}

func (a *DiscordAdapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	channelID := strings.TrimSpace(msg.Target)
	if channelID == "" {
		return fmt.Errorf("discord target is required")
	}
	session, err := a.messageSession()
	if err != nil {
		return err
	}
	return sendDiscordMessage(session, channelID, msg)
}

func sendDiscordMessage(session messageSession, channelID string, message channel.OutboundMessage) error {
	data := &discordgo.MessageSend{
		Content: truncateDiscordText(message.Text),
	}
	if message.Reply != nil && message.Reply.MessageID != "" {
		data.Reference = &discordgo.MessageReference{
			ChannelID: channelID,
			MessageID: message.Reply.MessageID,
		}
	}
	for _, att := range message.Attachments {
		f, err := os.Open(att.Path)
		if err != nil {
			return fmt.Errorf("discord open attachment: %w", err)
		}
		defer f.Close()
		data.Files = append(data.Files, &discordgo.File{
			Name:        att.Name,
			ContentType: att.ContentType,
			Reader:      f,
		})
	}
	_, err := session.ChannelMessageSendComplex(channelID, data)
	return err
}

func truncateDiscordText(text string) string {
	runes := []rune(text)
	if len(runes) > discordMaxLength {
		return string(runes[:discordMaxLength-3]) + "..."
	}
	return text
}

func (a *DiscordAdapter) ProcessingStarted(ctx context.Context, msg channel.InboundMessage) (channel.ProcessingStatusHandle, error) {
	chatID := strings.TrimSpace(msg.ReplyTarget)
	if chatID == "" {
		return channel.ProcessingStatusHandle{}, nil
	}
	session, err := a.messageSession()
	if err != nil {
		return channel.ProcessingStatusHandle{}, err
	}
	return startProcessingStatus(session, chatID, strings.TrimSpace(msg.ID))
}

func startProcessingStatus(session processingStatusSession, chatID, sourceMessageID string) (channel.ProcessingStatusHandle, error) {
	var firstErr error
	if err := session.ChannelTyping(chatID); err != nil {
		firstErr = err
	}

	handle := channel.ProcessingStatusHandle{}
	if sourceMessageID != "" {
		if err := session.MessageReactionAdd(chatID, sourceMessageID, processingBusyReactionEmoji); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			handle.Token = processingBusyReactionEmoji
		}
	}

	// A reaction handle stays usable for cleanup even if typing failed.
	if handle.Token != "" {
		return handle, nil
	}
	return handle, firstErr
}

func (a *DiscordAdapter) ProcessingCompleted(ctx context.Context, msg channel.InboundMessage, handle channel.ProcessingStatusHandle) error {
	emoji := strings.TrimSpace(handle.Token)
	chatID := strings.TrimSpace(msg.ReplyTarget)
	messageID := strings.TrimSpace(msg.ID)
	if emoji == "" || chatID == "" || messageID == "" {
		return nil
	}
	session, err := a.messageSession()
	if err != nil {
		return err
	}
	return session.MessageReactionRemove(chatID, messageID, emoji, "@me")
}

func (a *DiscordAdapter) isDuplicateInbound(messageID string) bool {
	if strings.TrimSpace(messageID) == "" {
		return false
	}

	now := time.Now().UTC()
	expireBefore := now.Add(-inboundDedupTTL)

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, seenAt := range a.seenMessages {
		if seenAt.Before(expireBefore) {
			delete(a.seenMessages, key)
		}
	}
	if _, ok := a.seenMessages[messageID]; ok {
		return true
	}
	a.seenMessages[messageID] = now
	return false
}

func (a *DiscordAdapter) swapHandlerRemover(remove func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handlerRemove != nil {
		a.handlerRemove()
	}
	a.handlerRemove = remove
}

func (a *DiscordAdapter) clearSessionState() func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	remove := a.handlerRemove
	a.handlerRemove = nil
	a.session = nil
	a.sender = nil
	return remove
}
