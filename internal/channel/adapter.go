package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrStopNotSupported is returned when a connection does not support graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler is a callback invoked when a message arrives from a channel.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// Adapter is the interface every gateway adapter implements.
type Adapter interface {
	Type() ChannelType
	// Connect starts receiving messages and forwards them to handler.
	Connect(ctx context.Context, handler InboundHandler) (Connection, error)
	// Send delivers one outbound message.
	Send(ctx context.Context, msg OutboundMessage) error
}

// ProcessingStatusHandle stores channel-specific state between status callbacks.
type ProcessingStatusHandle struct {
	Token string
}

// ProcessingStatusNotifier shows platform-native "working on it" feedback
// such as a typing indicator. Implementations are best-effort.
type ProcessingStatusNotifier interface {
	ProcessingStarted(ctx context.Context, msg InboundMessage) (ProcessingStatusHandle, error)
	ProcessingCompleted(ctx context.Context, msg InboundMessage, handle ProcessingStatusHandle) error
}

// Connection represents an active, long-lived link to a channel platform.
type Connection interface {
	ChannelType() ChannelType
	Running() bool
	Stop(ctx context.Context) error
}

// BaseConnection is a Connection backed by a stop function.
type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

// NewConnection returns a running connection that calls stop once.
func NewConnection(channelType ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		channelType: channelType,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

// ChannelType returns the type of channel this connection serves.
func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

// Running reports whether Stop has not been called yet.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	return c.stop(ctx)
}
