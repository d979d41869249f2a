package discord

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/askbot/internal/channel"
)

type fakeProcessingStatusSession struct {
	typingErr   error
	reactionErr error
	typed       []string
	reacted     []string
}

func (s *fakeProcessingStatusSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	s.typed = append(s.typed, channelID)
	return s.typingErr
}

func (s *fakeProcessingStatusSession) MessageReactionAdd(channelID, messageID, emoji string, options ...discordgo.RequestOption) error {
	if s.reactionErr != nil {
		return s.reactionErr
	}
	s.reacted = append(s.reacted, messageID+"/"+emoji)
	return nil
}

type fakeMessageSession struct {
	fakeProcessingStatusSession
	channelID string
	sent      *discordgo.MessageSend
	files     map[string]string
	removed   []string
}

func (s *fakeMessageSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.channelID = channelID
	s.sent = data
	s.files = map[string]string{}
	for _, f := range data.Files {
		body, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, err
		}
		s.files[f.Name] = string(body)
	}
	return &discordgo.Message{ID: "reply-1"}, nil
}

func (s *fakeMessageSession) MessageReactionRemove(channelID, messageID, emoji, userID string, options ...discordgo.RequestOption) error {
	s.removed = append(s.removed, channelID+"/"+messageID+"/"+emoji+"/"+userID)
	return nil
}

func TestToInbound(t *testing.T) {
	msg, ok := toInbound(&discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "  !ask hello  ",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
	})
	require.True(t, ok)
	assert.Equal(t, Type, msg.Channel)
	assert.Equal(t, "!ask hello", msg.Text)
	assert.Equal(t, "c1", msg.ReplyTarget)
	assert.Equal(t, "guild", msg.Conversation.Type)
	assert.Equal(t, "discord:u1", msg.UserKey())
	assert.Equal(t, "g1", msg.Sender.Attribute("guild_id"))

	msg, ok = toInbound(&discordgo.Message{ID: "m2", ChannelID: "dm", Content: "hi", Author: &discordgo.User{ID: "u2"}})
	require.True(t, ok)
	assert.Equal(t, "direct", msg.Conversation.Type)
}

func TestToInboundSkips(t *testing.T) {
	_, ok := toInbound(&discordgo.Message{Content: "!ask hi", Author: &discordgo.User{ID: "b", Bot: true}})
	assert.False(t, ok)
	_, ok = toInbound(&discordgo.Message{Content: "   ", Author: &discordgo.User{ID: "u"}})
	assert.False(t, ok)
	_, ok = toInbound(&discordgo.Message{Content: "hi"})
	assert.False(t, ok)
	_, ok = toInbound(nil)
	assert.False(t, ok)
}

func TestSendDiscordMessageText(t *testing.T) {
	session := &fakeMessageSession{}
	err := sendDiscordMessage(session, "c1", channel.OutboundMessage{
		Target: "c1",
		Text:   "hello",
		Reply:  &channel.ReplyRef{MessageID: "m1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", session.channelID)
	assert.Equal(t, "hello", session.sent.Content)
	require.NotNil(t, session.sent.Reference)
	assert.Equal(t, "m1", session.sent.Reference.MessageID)
	assert.Empty(t, session.sent.Files)
}

func TestSendDiscordMessageAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response-1.txt")
	require.NoError(t, os.WriteFile(path, []byte("long body"), 0o644))

	session := &fakeMessageSession{}
	err := sendDiscordMessage(session, "c1", channel.OutboundMessage{
		Target:      "c1",
		Text:        channel.AttachmentCaption,
		Attachments: []channel.Attachment{{Name: "response.txt", Path: path, ContentType: "text/plain"}},
	})
	require.NoError(t, err)
	assert.Equal(t, channel.AttachmentCaption, session.sent.Content)
	assert.Equal(t, map[string]string{"response.txt": "long body"}, session.files)
}

func TestSendDiscordMessageMissingAttachment(t *testing.T) {
	session := &fakeMessageSession{}
	err := sendDiscordMessage(session, "c1", channel.OutboundMessage{
		Target:      "c1",
		Attachments: []channel.Attachment{{Name: "x.txt", Path: filepath.Join(t.TempDir(), "missing.txt")}},
	})
	require.Error(t, err)
	assert.Nil(t, session.sent)
}

func TestTruncateDiscordText(t *testing.T) {
	assert.Equal(t, "short", truncateDiscordText("short"))
	long := strings.Repeat("é", discordMaxLength+10)
	out := truncateDiscordText(long)
	assert.Equal(t, discordMaxLength, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestDuplicateInbound(t *testing.T) {
	a := NewDiscordAdapter(nil, "token")
	assert.False(t, a.isDuplicateInbound("m1"))
	assert.True(t, a.isDuplicateInbound("m1"))
	assert.False(t, a.isDuplicateInbound("m2"))
	assert.False(t, a.isDuplicateInbound(""))
}

func TestProcessingCompletedRemovesReaction(t *testing.T) {
	session := &fakeMessageSession{}
	a := NewDiscordAdapter(nil, "token")
	a.sender = session

	msg := channel.InboundMessage{ID: "m1", ReplyTarget: "c1"}
	handle, err := a.ProcessingStarted(t.Context(), msg)
	require.NoError(t, err)
	require.NoError(t, a.ProcessingCompleted(t.Context(), msg, handle))
	assert.Equal(t, []string{"c1/m1/" + processingBusyReactionEmoji + "/@me"}, session.removed)

	require.NoError(t, a.ProcessingCompleted(t.Context(), msg, channel.ProcessingStatusHandle{}))
	assert.Len(t, session.removed, 1)
}

func TestSendRequiresToken(t *testing.T) {
	a := NewDiscordAdapter(nil, "")
	err := a.Send(t.Context(), channel.OutboundMessage{Target: "c1", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestStartProcessingStatus(t *testing.T) {
	t.Parallel()

	typingErr := errors.New("typing failed")
	reactionErr := errors.New("reaction failed")
	cases := []struct {
		name      string
		session   *fakeProcessingStatusSession
		messageID string
		wantToken string
		wantErr   error
	}{
		{name: "typing and reaction", session: &fakeProcessingStatusSession{}, messageID: "m1", wantToken: processingBusyReactionEmoji},
		{name: "reaction survives typing failure", session: &fakeProcessingStatusSession{typingErr: typingErr}, messageID: "m1", wantToken: processingBusyReactionEmoji},
		{name: "typing failure without message", session: &fakeProcessingStatusSession{typingErr: typingErr}, wantErr: typingErr},
		{name: "reaction failure", session: &fakeProcessingStatusSession{reactionErr: reactionErr}, messageID: "m1", wantErr: reactionErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handle, err := startProcessingStatus(tc.session, "c1", tc.messageID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantToken, handle.Token)
			assert.Equal(t, []string{"c1"}, tc.session.typed)
		})
	}
}

type fakeRegistrar struct {
	active map[int]string
	next   int
}

func (r *fakeRegistrar) AddHandler(handler interface{}) func() {
	if r.active == nil {
		r.active = map[int]string{}
	}
	id := r.next
	r.next++
	name := "other"
	switch handler.(type) {
	case func(*discordgo.Session, *discordgo.MessageCreate):
		name = "message"
	case func(*discordgo.Session, *discordgo.Ready):
		name = "ready"
	}
	r.active[id] = name
	return func() { delete(r.active, id) }
}

func TestReconnectRemovesEveryHandler(t *testing.T) {
	a := NewDiscordAdapter(nil, "token")
	reg := &fakeRegistrar{}
	noop := func(context.Context, channel.InboundMessage) error { return nil }

	a.swapHandlerRemover(a.addHandlers(t.Context(), reg, noop))
	assert.ElementsMatch(t, []string{"message", "ready"}, mapValues(reg.active))

	// A second connect replaces the first pair instead of stacking on it.
	a.swapHandlerRemover(a.addHandlers(t.Context(), reg, noop))
	assert.Len(t, reg.active, 2)

	remove := a.clearSessionState()
	require.NotNil(t, remove)
	remove()
	assert.Empty(t, reg.active)
}

func mapValues(m map[int]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
