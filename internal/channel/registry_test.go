package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	channelType ChannelType
	connectErr  error
	handler     InboundHandler
	sent        []OutboundMessage
	stopped     bool
}

func (a *stubAdapter) Type() ChannelType { return a.channelType }

func (a *stubAdapter) Connect(_ context.Context, handler InboundHandler) (Connection, error) {
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	a.handler = handler
	return NewConnection(a.channelType, func(context.Context) error {
		a.stopped = true
		return nil
	}), nil
}

func (a *stubAdapter) Send(_ context.Context, msg OutboundMessage) error {
	a.sent = append(a.sent, msg)
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{channelType: "telegram"}))
	require.NoError(t, r.Register(&stubAdapter{channelType: "Discord"}))

	assert.Error(t, r.Register(&stubAdapter{channelType: "discord"}))
	assert.Error(t, r.Register(&stubAdapter{channelType: " "}))
	assert.Error(t, r.Register(nil))

	_, ok := r.Get("DISCORD")
	assert.True(t, ok)
	_, ok = r.Get("feishu")
	assert.False(t, ok)

	assert.Equal(t, []ChannelType{"discord", "telegram"}, r.Types())
	assert.Equal(t, 2, r.Len())
}

func TestBaseConnectionStopOnce(t *testing.T) {
	calls := 0
	conn := NewConnection("discord", func(context.Context) error {
		calls++
		return nil
	})
	assert.True(t, conn.Running())
	require.NoError(t, conn.Stop(context.Background()))
	require.NoError(t, conn.Stop(context.Background()))
	assert.False(t, conn.Running())
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, NewConnection("x", nil).Stop(context.Background()), ErrStopNotSupported)
}

func TestUserKey(t *testing.T) {
	msg := InboundMessage{Channel: "discord", Sender: Identity{SubjectID: " 42 "}}
	assert.Equal(t, "discord:42", msg.UserKey())

	msg = InboundMessage{Channel: "telegram", Sender: Identity{DisplayName: "alice"}}
	assert.Equal(t, "telegram:alice", msg.UserKey())
}
