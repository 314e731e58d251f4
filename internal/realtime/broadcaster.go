package realtime

import (
	"context"

	"github.com/prudhvinik1/boardsync/internal/logging"
	"github.com/prudhvinik1/boardsync/internal/metrics"
	"github.com/prudhvinik1/boardsync/internal/protocol"
)

// Forwarder hands a locally published frame to other nodes.
type Forwarder interface {
	Forward(ctx context.Context, boardID, originID string, frame []byte) error
}

// Broadcaster fans frames out to the members of a board room. Delivery is
// best-effort: a member whose buffer is full simply misses the frame.
type Broadcaster struct {
	registry  *Registry
	forwarder Forwarder
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// SetForwarder enables cross-node fan-out. Must be called before serving.
func (b *Broadcaster) SetForwarder(f Forwarder) {
	b.forwarder = f
}

// Publish encodes ev under its server name, delivers it to every local member
// of boardID except exceptID, then forwards it to other nodes. Forwarding
// failures are logged, never returned. It returns the local delivery count.
func (b *Broadcaster) Publish(ctx context.Context, boardID string, ev protocol.MutationEvent, exceptID string) (int, error) {
	frame, err := protocol.EncodeServerFrame(ev)
	if err != nil {
		return 0, err
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Kind), string(ev.Op)).Inc()

	delivered := b.PublishFrame(boardID, frame, exceptID)

	if b.forwarder != nil {
		if err := b.forwarder.Forward(ctx, boardID, exceptID, frame); err != nil {
			metrics.RelayMessages.WithLabelValues("error").Inc()
			logging.WithBoard(boardID).Warn("Failed to forward event to other nodes", "event", ev.ServerName(), "error", err)
		}
	}

	return delivered, nil
}

// PublishFrame delivers an already encoded frame to local members only.
// Members are snapshotted first so sends never happen under the registry lock.
func (b *Broadcaster) PublishFrame(boardID string, frame []byte, exceptID string) int {
	members := b.registry.Members(boardID)

	delivered, dropped := 0, 0
	for _, m := range members {
		if m.ID() == exceptID {
			continue
		}
		if m.Send(frame) {
			delivered++
		} else {
			dropped++
		}
	}

	metrics.FanoutSize.Observe(float64(delivered + dropped))
	metrics.Deliveries.WithLabelValues("delivered").Add(float64(delivered))
	if dropped > 0 {
		metrics.Deliveries.WithLabelValues("dropped").Add(float64(dropped))
		logging.WithBoard(boardID).Debug("Dropped deliveries for slow members", "dropped", dropped)
	}

	return delivered
}
