package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prudhvinik1/boardsync/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "boardsync:board:"

func relayChannel(boardID string) string {
	return relayChannelPrefix + boardID
}

// relayMessage is what travels between nodes over Redis Pub/Sub.
type relayMessage struct {
	Node   string          `json:"node"`
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay carries published frames between server nodes so that room members
// connected to different nodes still see each other's mutations.
type Relay struct {
	rdb         *redis.Client
	nodeID      string
	broadcaster *Broadcaster
}

func NewRelay(rdb *redis.Client, nodeID string, broadcaster *Broadcaster) *Relay {
	return &Relay{rdb: rdb, nodeID: nodeID, broadcaster: broadcaster}
}

// Forward publishes a frame for other nodes.
func (r *Relay) Forward(ctx context.Context, boardID, originID string, frame []byte) error {
	data, err := json.Marshal(relayMessage{Node: r.nodeID, Origin: originID, Frame: frame})
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}
	if err := r.rdb.Publish(ctx, relayChannel(boardID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// Run subscribes to every board channel and delivers frames from other nodes
// to local members. Blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	defer func() {
		_ = pubsub.Close()
	}()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}
	slog.Info("Relay subscribed", "node_id", r.nodeID, "pattern", relayChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) handle(msg *redis.Message) {
	boardID := strings.TrimPrefix(msg.Channel, relayChannelPrefix)

	var rm relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
		metrics.RelayMessages.WithLabelValues("error").Inc()
		slog.Warn("Invalid relay message", "channel", msg.Channel, "error", err)
		return
	}

	// Frames from this node were already delivered locally.
	if rm.Node == r.nodeID {
		metrics.RelayMessages.WithLabelValues("skipped").Inc()
		return
	}

	metrics.RelayMessages.WithLabelValues("in").Inc()
	r.broadcaster.PublishFrame(boardID, rm.Frame, rm.Origin)
}
