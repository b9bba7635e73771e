package hostframe

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WSPort is a Port over a gorilla WebSocket connection. Inbound frames that
// fail to decode are logged and skipped.
type WSPort struct {
	log  zerolog.Logger
	conn *websocket.Conn

	in   chan Message
	send chan Message

	once   sync.Once
	closed chan struct{}
}

// NewWSPort starts the read and write pumps for conn.
func NewWSPort(log zerolog.Logger, conn *websocket.Conn) *WSPort {
	p := &WSPort{
		log:    log,
		conn:   conn,
		in:     make(chan Message, 16),
		send:   make(chan Message, 16),
		closed: make(chan struct{}),
	}
	go p.writePump()
	go p.readPump()
	return p
}

func (p *WSPort) Send(ctx context.Context, msg Message) error {
	select {
	case <-p.closed:
		return ErrPortClosed
	default:
	}
	select {
	case p.send <- msg:
		return nil
	case <-p.closed:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WSPort) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.closed:
		return Message{}, ErrPortClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *WSPort) Close() error {
	p.once.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
	})
	return nil
}

// Done is closed once the connection has gone away.
func (p *WSPort) Done() <-chan struct{} {
	return p.closed
}

func (p *WSPort) readPump() {
	defer p.Close()

	p.conn.SetReadLimit(maxMessageSize)
	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		p.log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			p.log.Warn().Err(err).Msg("dropping host message")
			continue
		}
		select {
		case p.in <- msg:
		case <-p.closed:
			return
		}
	}
}

func (p *WSPort) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.Close()
	}()

	for {
		select {
		case <-p.closed:
			_ = p.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				p.log.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				p.log.Warn().Err(err).Msg("failed to write host message")
				return
			}
		case <-ticker.C:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
