package push

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"ordersync/internal/config"
	"ordersync/internal/order"
)

// subscribeFrame is the first message sent after dialing
type subscribeFrame struct {
	Type    string     `json:"type"`
	Role    order.Role `json:"role"`
	ActorID string     `json:"actorId"`
}

// WebsocketSource streams notifications over a websocket
type WebsocketSource struct {
	url          string
	pingInterval time.Duration
	dialer       *websocket.Dialer
}

// NewWebsocketSource creates a websocket source
func NewWebsocketSource(cfg config.WebsocketConfig) *WebsocketSource {
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &WebsocketSource{
		url:          cfg.URL,
		pingInterval: ping,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Name identifies the transport
func (s *WebsocketSource) Name() string {
	return config.TransportWebsocket
}

// Stream dials, subscribes and reads until the connection drops
func (s *WebsocketSource) Stream(ctx context.Context, actor order.Actor, h Handler) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	defer conn.Close()

	err = conn.WriteJSON(subscribeFrame{Type: "subscribe", Role: actor.Role, ActorID: actor.ID})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	pongWait := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.subscribed()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.pingInterval)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.message(data)
	}
}
