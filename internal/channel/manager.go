package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// InboundProcessor handles one inbound message. The adapter is passed along
// so the processor can reply on the same channel.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, msg InboundMessage, adapter Adapter) error
}

// InboundProcessorFunc adapts a function to InboundProcessor.
type InboundProcessorFunc func(ctx context.Context, msg InboundMessage, adapter Adapter) error

// HandleInbound calls f.
func (f InboundProcessorFunc) HandleInbound(ctx context.Context, msg InboundMessage, adapter Adapter) error {
	return f(ctx, msg, adapter)
}

// Middleware wraps an InboundHandler to add cross-cutting behavior.
type Middleware func(next InboundHandler) InboundHandler

// ConnectionStatus describes runtime status for one channel connection.
type ConnectionStatus struct {
	ChannelType ChannelType `json:"channel_type"`
	Running     bool        `json:"running"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type inboundTask struct {
	ctx     context.Context
	msg     InboundMessage
	adapter Adapter
}

// Manager owns the gateway connections and feeds inbound messages to the
// processor through a bounded worker pool.
type Manager struct {
	registry    *Registry
	processor   InboundProcessor
	logger      *slog.Logger
	middlewares []Middleware

	inboundQueue   chan inboundTask
	inboundWorkers int
	inboundOnce    sync.Once
	inboundCtx     context.Context
	inboundCancel  context.CancelFunc
	workers        sync.WaitGroup

	mu          sync.Mutex
	connections map[ChannelType]Connection
	status      map[ChannelType]ConnectionStatus
}

// NewManager creates a Manager with the given logger, registry and inbound processor.
func NewManager(log *slog.Logger, registry *Registry, processor InboundProcessor) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:       registry,
		processor:      processor,
		logger:         log.With(slog.String("component", "channel")),
		inboundQueue:   make(chan inboundTask, 256),
		inboundWorkers: 4,
		connections:    map[ChannelType]Connection{},
		status:         map[ChannelType]ConnectionStatus{},
	}
}

// Use appends middleware to the inbound processing chain.
func (m *Manager) Use(mw ...Middleware) {
	m.middlewares = append(m.middlewares, mw...)
}

// Start launches the inbound workers and connects every registered adapter.
// It fails only when no adapter could connect.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("manager start", slog.Int("adapters", m.registry.Len()))
	m.startInboundWorkers(ctx)

	var errs []error
	connected := 0
	for _, ct := range m.registry.Types() {
		adapter, ok := m.registry.Get(ct)
		if !ok {
			continue
		}
		conn, err := adapter.Connect(ctx, m.handlerFor(adapter))
		if err != nil {
			m.logger.Error("adapter connect failed", slog.String("channel", ct.String()), slog.Any("error", err))
			m.setStatus(ct, false, err)
			errs = append(errs, fmt.Errorf("%s: %w", ct, err))
			continue
		}
		m.mu.Lock()
		m.connections[ct] = conn
		m.mu.Unlock()
		m.setStatus(ct, true, nil)
		connected++
		m.logger.Info("adapter connected", slog.String("channel", ct.String()))
	}
	if connected == 0 {
		if len(errs) == 0 {
			return errors.New("no channel adapters registered")
		}
		return errors.Join(errs...)
	}
	return nil
}

func (m *Manager) handlerFor(adapter Adapter) InboundHandler {
	handler := InboundHandler(func(ctx context.Context, msg InboundMessage) error {
		return m.enqueue(ctx, msg, adapter)
	})
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	return handler
}

func (m *Manager) startInboundWorkers(ctx context.Context) {
	m.inboundOnce.Do(func() {
		m.inboundCtx, m.inboundCancel = context.WithCancel(context.WithoutCancel(ctx))
		for i := 0; i < m.inboundWorkers; i++ {
			m.workers.Add(1)
			go m.runInboundWorker()
		}
	})
}

func (m *Manager) runInboundWorker() {
	defer m.workers.Done()
	for {
		select {
		case <-m.inboundCtx.Done():
			return
		case task := <-m.inboundQueue:
			m.process(task)
		}
	}
}

func (m *Manager) process(task inboundTask) {
	if m.processor == nil {
		return
	}
	ctx, cancel := m.taskContext(task.ctx)
	defer cancel()
	if err := m.processor.HandleInbound(ctx, task.msg, task.adapter); err != nil {
		m.logger.Error("inbound processing failed",
			slog.String("channel", task.msg.Channel.String()),
			slog.String("message_id", task.msg.ID),
			slog.Any("error", err))
	}
}

// taskContext keeps the values of the gateway context but takes cancellation
// from the worker pool, so Shutdown reaches in-flight work while a gateway
// context that ends early does not.
func (m *Manager) taskContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		return context.WithCancel(m.inboundCtx)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(m.inboundCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) enqueue(ctx context.Context, msg InboundMessage, adapter Adapter) error {
	if m.inboundCtx == nil {
		return errors.New("channel manager not started")
	}
	task := inboundTask{ctx: ctx, msg: msg, adapter: adapter}
	select {
	case m.inboundQueue <- task:
		return nil
	case <-m.inboundCtx.Done():
		return m.inboundCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) setStatus(ct ChannelType, running bool, err error) {
	status := ConnectionStatus{
		ChannelType: ct,
		Running:     running,
		UpdatedAt:   time.Now().UTC(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	m.mu.Lock()
	m.status[ct] = status
	m.mu.Unlock()
}

// Statuses returns the observed state of every adapter, sorted by channel type.
func (m *Manager) Statuses() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.status))
	for ct, status := range m.status {
		if conn, ok := m.connections[ct]; ok && conn != nil {
			status.Running = conn.Running()
		}
		items = append(items, status)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ChannelType < items[j].ChannelType })
	return items
}

// Shutdown cancels the inbound worker pool, including messages still being
// processed, and stops all active connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.inboundCancel != nil {
		m.inboundCancel()
	}
	m.mu.Lock()
	conns := make(map[ChannelType]Connection, len(m.connections))
	for ct, conn := range m.connections {
		conns[ct] = conn
	}
	m.connections = map[ChannelType]Connection{}
	m.mu.Unlock()

	var errs []error
	for ct, conn := range conns {
		if err := conn.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
			m.logger.Warn("adapter stop failed", slog.String("channel", ct.String()), slog.Any("error", err))
			errs = append(errs, err)
		}
		m.setStatus(ct, false, nil)
	}
	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return errors.Join(errs...)
}
