package observability

import (
	"github.com/danmuck/tether/internal/controller"
)

// Observe records every controller event into the tether metrics and returns
// the subscription cancel func.
func Observe(c *controller.Controller) (cancel func()) {
	RegisterMetrics()
	node := c.Config().NodeID
	return c.Subscribe(func(ev controller.Event) {
		kind := ev.Kind.String()
		switch ev.Kind {
		case controller.PacketRejected:
			RecordPacket(node, kind)
			RecordRejected(node, ev.Reason)
		case controller.PacketSent, controller.PacketReceived, controller.PacketAccepted,
			controller.PacketUnknown, controller.PacketRetransmitted, controller.PacketAbandoned:
			RecordPacket(node, kind)
		default:
			RecordSessionEvent(node, kind, ev.Reason)
			SetSessionsActive(node, c.SessionCount())
		}
		if ev.Kind != controller.PacketReceived {
			SetOutstanding(node, c.OutstandingCount())
		}
	})
}
