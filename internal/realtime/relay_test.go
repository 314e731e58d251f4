package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayPayload(t *testing.T, node, origin string, frame string) string {
	t.Helper()
	data, err := json.Marshal(relayMessage{Node: node, Origin: origin, Frame: json.RawMessage(frame)})
	require.NoError(t, err)
	return string(data)
}

func TestRelay_DeliversFramesFromOtherNodes(t *testing.T) {
	r := NewRegistry(0)
	relay := NewRelay(nil, "node-a", NewBroadcaster(r))
	origin, peer := newFakeMember("origin"), newFakeMember("peer")
	_, _ = r.Join(origin, "board-1")
	_, _ = r.Join(peer, "board-1")

	frame := `{"event":"item-deleted","data":{"boardId":"board-1","collectionId":"c1","itemId":"i1"}}`
	relay.handle(&redis.Message{
		Channel: relayChannel("board-1"),
		Payload: relayPayload(t, "node-b", "origin", frame),
	})

	assert.Empty(t, origin.received(), "origin connection is excluded on every node")
	require.Len(t, peer.received(), 1)
	assert.JSONEq(t, frame, string(peer.received()[0]))
}

func TestRelay_SkipsOwnNode(t *testing.T) {
	r := NewRegistry(0)
	relay := NewRelay(nil, "node-a", NewBroadcaster(r))
	peer := newFakeMember("peer")
	_, _ = r.Join(peer, "board-1")

	relay.handle(&redis.Message{
		Channel: relayChannel("board-1"),
		Payload: relayPayload(t, "node-a", "someone", `{"event":"board-deleted","data":{"boardId":"board-1"}}`),
	})

	assert.Empty(t, peer.received())
}

func TestRelay_IgnoresGarbage(t *testing.T) {
	r := NewRegistry(0)
	relay := NewRelay(nil, "node-a", NewBroadcaster(r))
	peer := newFakeMember("peer")
	_, _ = r.Join(peer, "board-1")

	relay.handle(&redis.Message{Channel: relayChannel("board-1"), Payload: "{"})

	assert.Empty(t, peer.received())
}

// TestRelay_AcrossNodes runs two relays against a live Redis and checks that a
// frame forwarded by one reaches members on the other.
func TestRelay_AcrossNodes(t *testing.T) {
	client := getTestRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	regA, regB := NewRegistry(0), NewRegistry(0)
	relayA := NewRelay(client, "node-a", NewBroadcaster(regA))
	relayB := NewRelay(client, "node-b", NewBroadcaster(regB))

	memberB := newFakeMember("member-b")
	_, _ = regB.Join(memberB, "relay-board")

	go func() { _ = relayB.Run(ctx) }()

	frame := []byte(`{"event":"link-deleted","data":{"boardId":"relay-board","collectionId":"c1","linkId":"l9"}}`)

	// Publish until the subscriber on node-b is live.
	require.Eventually(t, func() bool {
		require.NoError(t, relayA.Forward(ctx, "relay-board", "member-a", frame))
		return len(memberB.received()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	assert.JSONEq(t, string(frame), string(memberB.received()[0]))
}

func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use DB 1 for tests (different from production DB 0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}
