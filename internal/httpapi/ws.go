package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenjiegu/notescout/internal/protocol"
)

// wsClient is the notify.Sender bound to one websocket connection.
// Sends enqueue onto the outbound channel; a single writer goroutine
// owns the connection.
type wsClient struct {
	conn     *websocket.Conn
	outbound chan any
	done     chan struct{}
	once     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:     conn,
		outbound: make(chan any, 256),
		done:     make(chan struct{}),
	}
}

func (c *wsClient) Send(payload any) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.outbound <- payload:
		return nil
	default:
		// Keep websocket writes single-threaded; drop if the outbound
		// queue is saturated.
		return errors.New("outbound queue full")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "missing_client_id", "query parameter client_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveClients.Inc()
		defer s.metrics.ActiveClients.Dec()
	}

	client := newWSClient(conn)
	s.registry.Register(clientID, client)
	defer s.registry.Unregister(clientID, client)
	defer client.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.done:
				return
			case msg := <-client.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					client.close()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.countWSMessage("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			client.Send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.countWSMessage("inbound", t)
		}

		switch msg := parsed.(type) {
		case protocol.ClientChat:
			go s.chat.ProcessChat(context.Background(), msg.ClientID, msg.Message)
		case protocol.ClientUserInput:
			env := s.flow.SubmitUserInput(msg.TaskID, msg.ClientID, msg.ContinueSearch)
			if env.Status != "success" {
				client.Send(protocol.ErrorEvent{
					Type:   protocol.TypeErrorEvent,
					Code:   "user_input_rejected",
					Detail: env.Message,
				})
			}
		}
	}

	cancel()
	client.close()
	<-writerDone
}

func (s *Server) countWSMessage(direction string, t protocol.MessageType) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientChat:
		return m.Type, true
	case protocol.ClientUserInput:
		return m.Type, true
	case protocol.ChatResponse:
		return m.Type, true
	case protocol.SearchIntent:
		return m.Type, true
	case protocol.SearchUpdate:
		return m.Type, true
	case protocol.SearchResult:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
