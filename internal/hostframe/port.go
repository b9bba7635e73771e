package hostframe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// Action names of the host-frame protocol.
const (
	ActionSetViewMode             = "setViewMode"
	ActionRequestExpandFromIframe = "requestExpandFromIframe"
)

// Message is the JSON shape exchanged with the host page.
type Message struct {
	Action string `json:"action"`
	Mode   Mode   `json:"mode,omitempty"`
}

// SetViewMode is the inbound instruction to switch display mode.
func SetViewMode(m Mode) Message {
	return Message{Action: ActionSetViewMode, Mode: m}
}

// RequestExpand is the outbound request asking the host to expand the frame.
func RequestExpand() Message {
	return Message{Action: ActionRequestExpandFromIframe}
}

// DecodeMessage parses and validates an inbound message.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode host message: %w", err)
	}
	if m.Action == "" {
		return Message{}, errors.New("host message without action")
	}
	if m.Action == ActionSetViewMode {
		if _, err := ParseMode(string(m.Mode)); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

// ErrPortClosed is returned by ports that have been shut down.
var ErrPortClosed = errors.New("host port closed")

// Port is a bidirectional message channel to the host page.
type Port interface {
	// Send delivers a message to the host.
	Send(ctx context.Context, msg Message) error
	// Receive blocks for the next inbound message.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// ChannelPort is an in-process Port.
type ChannelPort struct {
	in  chan Message
	out chan Message

	once   sync.Once
	closed chan struct{}
}

func NewChannelPort(buffer int) *ChannelPort {
	return &ChannelPort{
		in:     make(chan Message, buffer),
		out:    make(chan Message, buffer),
		closed: make(chan struct{}),
	}
}

func (p *ChannelPort) Send(ctx context.Context, msg Message) error {
	select {
	case <-p.closed:
		return ErrPortClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ChannelPort) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.closed:
		return Message{}, ErrPortClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *ChannelPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Deliver pushes a message as if the host had sent it.
func (p *ChannelPort) Deliver(ctx context.Context, msg Message) error {
	select {
	case p.in <- msg:
		return nil
	case <-p.closed:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound exposes messages sent towards the host.
func (p *ChannelPort) Outbound() <-chan Message {
	return p.out
}
