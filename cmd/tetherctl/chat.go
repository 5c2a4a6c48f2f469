package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/tether/internal/controller"
	"github.com/danmuck/tether/internal/protocol/packet"
	"github.com/danmuck/tether/internal/protocol/registry"
)

// chatMessage is the one application packet tetherctl ships: a line of text
// from a named node, ordered and reliable.
type chatMessage struct {
	From string
	Text string
}

func (*chatMessage) PacketName() string { return "tether.cli.ChatMessage" }

func (m *chatMessage) MarshalPacket(b *packet.Buffer) error {
	b.WriteString(m.From)
	b.WriteString(m.Text)
	return nil
}

func (m *chatMessage) UnmarshalPacket(b *packet.Buffer) error {
	var err error
	if m.From, err = b.ReadString(); err != nil {
		return err
	}
	m.Text, err = b.ReadString()
	return err
}

func registerChat(reg *registry.Registry, out io.Writer) error {
	_, err := reg.Register(func() registry.Payload { return &chatMessage{} }, registry.Options{
		Ordered:         true,
		Reliable:        true,
		RequiresSession: true,
	})
	if err != nil {
		return err
	}
	var mu sync.Mutex
	return registry.OnReceive(reg, registry.RoleAgnostic, func(d *registry.Delivery, m *chatMessage) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(out, "[%s] %s\n", m.From, m.Text)
	})
}

// relayChat rebroadcasts messages a host receives to every other joiner.
func relayChat(reg *registry.Registry, ctrl *controller.Controller) error {
	return registry.OnReceive(reg, registry.RoleServerOnly, func(d *registry.Delivery, m *chatMessage) {
		if err := ctrl.BroadcastExcept(m, d.From); err != nil {
			log.Warn().Err(err).Msg("chat relay failed")
		}
	})
}

// pumpLines broadcasts each non-empty input line until ctx ends or in closes.
func pumpLines(ctx context.Context, in io.Reader, from string, ctrl *controller.Controller) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := ctrl.Broadcast(&chatMessage{From: from, Text: text}); err != nil {
			log.Warn().Err(err).Msg("chat broadcast failed")
		}
	}
}
