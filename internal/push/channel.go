package push

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ordersync/internal/config"
	"ordersync/internal/order"
	"ordersync/internal/utils"
)

// ChannelOptions tunes buffering and reconnection
type ChannelOptions struct {
	Buffer           int
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Channel keeps a subscription alive and emits the actor's events. Events
// from one subscription are emitted in arrival order. A dropped connection
// emits EventDisconnected once; the next successful subscription emits
// EventReconnected.
type Channel struct {
	source  Source
	actor   order.Actor
	opts    ChannelOptions
	events  chan Event
	logger  *utils.Logger
	metrics *utils.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewChannel creates a channel over a source
func NewChannel(source Source, actor order.Actor, opts ChannelOptions, logger *utils.Logger, metrics *utils.Metrics) *Channel {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Channel{
		source:  source,
		actor:   actor,
		opts:    opts,
		events:  make(chan Event, opts.Buffer),
		logger:  logger.With("push", map[string]interface{}{"transport": source.Name()}),
		metrics: metrics,
	}
}

// NewSource builds the source selected by configuration
func NewSource(cfg config.PushConfig) (Source, error) {
	switch cfg.Transport {
	case config.TransportWebsocket:
		return NewWebsocketSource(cfg.Websocket), nil
	case config.TransportRedis:
		return NewRedisSource(cfg.Redis), nil
	case config.TransportKafka:
		return NewKafkaSource(cfg.Kafka), nil
	}
	return nil, errors.New("unknown push transport " + cfg.Transport)
}

// Events returns the event stream. It is closed when Run returns.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Run subscribes and keeps resubscribing until ctx is done or Close is called
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.events)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	down := false
	handler := Handler{
		OnSubscribed: func() {
			b.Reset()
			c.logger.Info("subscribed", map[string]interface{}{"actor": c.actor.ID, "role": c.actor.Role})
			if down {
				down = false
				c.emit(ctx, Event{Type: EventReconnected})
			}
		},
		OnMessage: func(data []byte) {
			c.handle(ctx, data)
		},
	}

	for {
		err := c.source.Stream(ctx, c.actor, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("stream ended")
		}

		if !down {
			down = true
			c.metrics.RecordDisconnect()
			c.emit(ctx, Event{
				Type: EventDisconnected,
				Err:  order.Wrap(order.KindChannelDisconnect, "push", "", err),
			})
		}

		wait := b.NextBackOff()
		c.logger.Warn("push channel down, resubscribing", map[string]interface{}{
			"error": err.Error(),
			"wait":  wait.String(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// handle decodes one payload and forwards it when addressed to the actor
func (c *Channel) handle(ctx context.Context, data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		c.metrics.RecordPushEvent("malformed")
		c.logger.Warn("dropping malformed notification", map[string]interface{}{"error": err.Error()})
		return
	}
	if !ev.For(c.actor) {
		return
	}
	c.metrics.RecordPushEvent(string(ev.Type))
	c.emit(ctx, ev)
}

func (c *Channel) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// Close unsubscribes. Run returns shortly after.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer, ok := c.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
